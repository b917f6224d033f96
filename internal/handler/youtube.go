package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/artur/tubedrop/internal/bot"
	"github.com/artur/tubedrop/internal/delivery"
	"github.com/artur/tubedrop/internal/downloader"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const callbackPrefix = "yt:"

// Finalizer is the delivery gate as seen by the handler.
type Finalizer interface {
	Finalize(ctx context.Context, path string, kind downloader.MediaKind, sender delivery.Sender) (delivery.Outcome, error)
	MaxMiB() float64
}

// YouTubeHandler answers a link with a quality keyboard and runs the download
// when a quality is picked.
type YouTubeHandler struct {
	downloader downloader.Downloader
	gate       Finalizer
	tracker    *Tracker
	timeout    time.Duration
	logger     *zap.Logger
}

func NewYouTubeHandler(dl downloader.Downloader, gate Finalizer, tracker *Tracker, timeout time.Duration, logger *zap.Logger) *YouTubeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &YouTubeHandler{
		downloader: dl,
		gate:       gate,
		tracker:    tracker,
		timeout:    timeout,
		logger:     logger.Named("youtube"),
	}
}

// CanHandle takes every plain text message and every quality callback.
func (h *YouTubeHandler) CanHandle(update tgbotapi.Update) bool {
	if update.Message != nil {
		return update.Message.Text != "" && !update.Message.IsCommand()
	}
	if update.CallbackQuery != nil {
		return strings.HasPrefix(update.CallbackQuery.Data, callbackPrefix)
	}
	return false
}

func (h *YouTubeHandler) Handle(ctx context.Context, api bot.API, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		h.handleCallback(ctx, api, update.CallbackQuery)
		return
	}
	h.handleLink(ctx, api, update.Message)
}

func (h *YouTubeHandler) handleLink(ctx context.Context, api bot.API, message *tgbotapi.Message) {
	chatID := message.Chat.ID

	if !downloader.IsYouTubeLink(message.Text) {
		h.reply(api, tgbotapi.NewMessage(chatID, "Это не ссылка на YouTube."))
		return
	}
	videoID := downloader.ParseVideoID(message.Text)
	if videoID == "" {
		h.reply(api, tgbotapi.NewMessage(chatID, "❌ Не удалось найти id видео в ссылке."))
		return
	}
	h.tracker.Track(ctx, message.From, "link")

	msg := tgbotapi.NewMessage(chatID, "Качество:")
	msg.ReplyMarkup = qualityKeyboard(videoID)
	h.reply(api, msg)
}

func qualityKeyboard(videoID string) tgbotapi.InlineKeyboardMarkup {
	button := func(label string, q downloader.Quality) tgbotapi.InlineKeyboardButton {
		return tgbotapi.NewInlineKeyboardButtonData(label, callbackData(videoID, q))
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			button("720p", downloader.QualityHigh),
			button("480p", downloader.QualityMedium),
		),
		tgbotapi.NewInlineKeyboardRow(
			button("MP3", downloader.QualityAudio),
		),
	)
}

// callbackData is yt:<videoID>:<quality>, well inside Telegram's 64 byte limit.
func callbackData(videoID string, q downloader.Quality) string {
	return callbackPrefix + videoID + ":" + q.String()
}

func parseCallbackData(data string) (videoID, quality string, ok bool) {
	parts := strings.Split(data, ":")
	if len(parts) != 3 || parts[0]+":" != callbackPrefix || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

func (h *YouTubeHandler) handleCallback(ctx context.Context, api bot.API, callback *tgbotapi.CallbackQuery) {
	if _, err := api.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		h.logger.Debug("failed to answer callback", zap.Error(err))
	}
	if callback.Message == nil || callback.Message.Chat == nil {
		return
	}
	chatID := callback.Message.Chat.ID
	messageID := callback.Message.MessageID

	videoID, quality, ok := parseCallbackData(callback.Data)
	if !ok {
		h.logger.Warn("malformed callback data", zap.String("data", callback.Data))
		return
	}
	h.tracker.Track(ctx, callback.From, quality)

	h.reply(api, tgbotapi.NewEditMessageText(chatID, messageID, "Скачиваю..."))
	h.reply(api, tgbotapi.NewChatAction(chatID, chatActionFor(quality)))

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	result, err := h.downloader.HandleDownloadRequest(ctx, downloader.WatchURL(videoID), quality)
	if err != nil {
		h.logger.Warn("download failed", zap.String("video_id", videoID), zap.Error(err))
		h.reply(api, tgbotapi.NewEditMessageText(chatID, messageID, "❌ Ошибка: "+err.Error()))
		return
	}

	outcome, err := h.gate.Finalize(ctx, result.Path, result.Kind, TelegramSender{API: api, ChatID: chatID})
	switch {
	case err != nil:
		h.logger.Warn("delivery failed", zap.String("video_id", videoID), zap.Error(err))
		h.reply(api, tgbotapi.NewEditMessageText(chatID, messageID, "❌ Не удалось отправить файл: "+err.Error()))
	case outcome.Status == delivery.Rejected:
		h.reply(api, tgbotapi.NewEditMessageText(chatID, messageID, tooLargeText(outcome.SizeMiB, h.gate.MaxMiB())))
	default:
		h.reply(api, tgbotapi.NewDeleteMessage(chatID, messageID))
	}
}

func chatActionFor(quality string) string {
	if q, err := downloader.ParseQuality(quality); err == nil && q.Audio {
		return tgbotapi.ChatUploadVoice
	}
	return tgbotapi.ChatUploadVideo
}

func tooLargeText(sizeMiB, maxMiB float64) string {
	return fmt.Sprintf("Файл больше %.0fМБ! (%.1f МБ)", maxMiB, sizeMiB)
}

// reply sends c and only logs failures; the user has nothing to act on.
func (h *YouTubeHandler) reply(api bot.API, c tgbotapi.Chattable) {
	if _, err := api.Request(c); err != nil {
		h.logger.Debug("telegram request failed", zap.Error(err))
	}
}
