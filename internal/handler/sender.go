package handler

import (
	"context"
	"io"

	"github.com/artur/tubedrop/internal/bot"
	"github.com/artur/tubedrop/internal/delivery"
	"github.com/artur/tubedrop/internal/downloader"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSender uploads an artifact to one chat as audio or video.
type TelegramSender struct {
	API    bot.API
	ChatID int64
}

func (s TelegramSender) Send(ctx context.Context, a delivery.Artifact, r io.Reader) error {
	file := tgbotapi.FileReader{Name: a.Name, Reader: r}

	var msg tgbotapi.Chattable
	if a.Kind == downloader.MediaAudio {
		msg = tgbotapi.NewAudio(s.ChatID, file)
	} else {
		video := tgbotapi.NewVideo(s.ChatID, file)
		video.SupportsStreaming = true
		msg = video
	}

	_, err := s.API.Send(msg)
	return err
}
