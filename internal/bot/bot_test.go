package bot

import (
	"context"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// MockHandler implements Handler interface for testing
type MockHandler struct {
	canHandleFunc func(update tgbotapi.Update) bool
	handleFunc    func(update tgbotapi.Update)
}

func (m *MockHandler) CanHandle(update tgbotapi.Update) bool {
	if m.canHandleFunc != nil {
		return m.canHandleFunc(update)
	}
	return false
}

func (m *MockHandler) Handle(ctx context.Context, api API, update tgbotapi.Update) {
	if m.handleFunc != nil {
		m.handleFunc(update)
	}
}

func textHandler(text string, called chan<- string) *MockHandler {
	return &MockHandler{
		canHandleFunc: func(update tgbotapi.Update) bool {
			return update.Message != nil && update.Message.Text == text
		},
		handleFunc: func(update tgbotapi.Update) {
			called <- text
		},
	}
}

func newTestBot() *Bot {
	return &Bot{handlers: make([]Handler, 0), logger: zap.NewNop()}
}

func TestBot_RegisterHandler(t *testing.T) {
	bot := newTestBot()

	handler1 := &MockHandler{}
	handler2 := &MockHandler{}
	bot.RegisterHandler(handler1)
	bot.RegisterHandler(handler2)

	if len(bot.handlers) != 2 {
		t.Fatalf("Expected 2 handlers, got %d", len(bot.handlers))
	}
	if bot.handlers[0] != handler1 || bot.handlers[1] != handler2 {
		t.Error("Handlers should keep registration order")
	}
}

func TestBot_MatchFirstWins(t *testing.T) {
	bot := newTestBot()
	called := make(chan string, 2)

	first := textHandler("hello", called)
	second := textHandler("hello", called)
	bot.RegisterHandler(first)
	bot.RegisterHandler(second)

	h := bot.match(tgbotapi.Update{Message: &tgbotapi.Message{Text: "hello"}})
	if h != first {
		t.Errorf("Expected first matching handler, got %v", h)
	}

	if h := bot.match(tgbotapi.Update{Message: &tgbotapi.Message{Text: "other"}}); h != nil {
		t.Errorf("Expected no handler, got %v", h)
	}
}

func TestBot_DispatchRunsHandler(t *testing.T) {
	bot := newTestBot()
	called := make(chan string, 2)
	bot.RegisterHandler(textHandler("command1", called))
	bot.RegisterHandler(textHandler("command2", called))

	bot.dispatch(context.Background(), nil, tgbotapi.Update{
		Message: &tgbotapi.Message{Text: "command2", Chat: &tgbotapi.Chat{ID: 1}},
	})

	select {
	case got := <-called:
		if got != "command2" {
			t.Errorf("Expected command2 handler, got %s", got)
		}
	case <-time.After(time.Second):
		t.Fatal("Handler was not called")
	}
}

func TestBot_DispatchSkipsEmptyUpdate(t *testing.T) {
	bot := newTestBot()
	called := make(chan string, 1)
	bot.RegisterHandler(&MockHandler{
		canHandleFunc: func(tgbotapi.Update) bool { return true },
		handleFunc:    func(tgbotapi.Update) { called <- "any" },
	})

	bot.dispatch(context.Background(), nil, tgbotapi.Update{})

	select {
	case <-called:
		t.Error("Handler should not run for an update without message or callback")
	case <-time.After(50 * time.Millisecond):
	}
}
