package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gorm.io/gorm"

	"deadline-bot/internal/repository"
	"deadline-bot/internal/scraper"
	"deadline-bot/internal/service"
)

type conversationStage int

const (
	stageNone conversationStage = iota
	stageUsername
	stagePassword
	stagePending
)

const cbDonePrefix = "done:"

const (
	menuLabelDeadlines = "📋 My deadlines"
	menuLabelEnable    = "✅ Enable notifications"
	menuLabelDisable   = "🔕 Disable notifications"
	menuLabelRefresh   = "🔄 Refresh deadlines"
	btnDone            = "Done ✅"
)

const refreshTimeout = 5 * time.Minute

type conversationState struct {
	stage    conversationStage
	username string
}

// Bot wires the Telegram API to the deadline services.
type Bot struct {
	api           *tgbotapi.BotAPI
	userRepo      *repository.UserRepository
	eventRepo     *repository.EventRepository
	refreshSvc    *service.RefreshService
	conversations map[int64]*conversationState
	mu            sync.Mutex
}

func New(token string, userRepo *repository.UserRepository, eventRepo *repository.EventRepository, refreshSvc *service.RefreshService) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Printf("[info] bot authorized on account %s", api.Self.UserName)

	return &Bot{
		api:           api,
		userRepo:      userRepo,
		eventRepo:     eventRepo,
		refreshSvc:    refreshSvc,
		conversations: make(map[int64]*conversationState),
	}, nil
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	log.Println("[info] start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				log.Printf("handle callback: %v", err)
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				log.Printf("handle message: %v", err)
			}
		}
	}

	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if msg.IsCommand() {
		log.Printf("[info] command from %d: /%s", msg.From.ID, msg.Command())
		return b.handleCommand(ctx, msg)
	}

	if state := b.getConversation(msg.From.ID); state != nil && state.stage != stageNone {
		return b.handleRegistrationStep(ctx, msg, state)
	}

	if handled, err := b.handleMenuAlias(ctx, msg); handled {
		return err
	}

	return b.sendText(msg.Chat.ID, "I didn't catch that. Use the menu below, or /help for the command list.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	case "delete":
		return b.handleDeleteUser(ctx, msg)
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. Try /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	exists, err := b.userRepo.Exists(ctx, msg.From.ID)
	if err != nil {
		return err
	}
	if exists {
		return b.sendText(msg.Chat.ID, "You are already registered. Pick an option from the menu below.")
	}

	b.setConversation(msg.From.ID, &conversationState{stage: stageUsername})
	return b.sendPlain(msg.Chat.ID, "👤 Please enter your university username:")
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	text := "ℹ️ <b>What I do</b>\n" +
		"I log into the course portal with your account, pull your assignment deadlines and remind you before they hit.\n\n" +
		"• /start — register with your portal credentials\n" +
		"• " + menuLabelDeadlines + " — list your open deadlines\n" +
		"• " + menuLabelRefresh + " — re-fetch the portal calendar now\n" +
		"• " + menuLabelEnable + " / " + menuLabelDisable + " — toggle reminders\n" +
		"• /delete — remove your account and deadlines"
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleDeleteUser(ctx context.Context, msg *tgbotapi.Message) error {
	if err := b.userRepo.Delete(ctx, msg.From.ID); err != nil {
		return b.sendText(msg.Chat.ID, "Could not delete your data, please try again later.")
	}
	b.clearConversation(msg.From.ID)
	log.Printf("[info] deleted user=%d", msg.From.ID)
	return b.sendPlain(msg.Chat.ID, "✅ Your account and deadlines were deleted. Send /start to register again.")
}

// handleRegistrationStep drives the two-step credentials dialog. The
// password step creates a tentative user and verifies it with a real
// portal fetch off the polling loop; on failure the user row is rolled
// back and the dialog restarts at the username step.
func (b *Bot) handleRegistrationStep(ctx context.Context, msg *tgbotapi.Message, state *conversationState) error {
	text := strings.TrimSpace(msg.Text)

	switch state.stage {
	case stageUsername:
		if text == "" {
			return b.sendPlain(msg.Chat.ID, "Username can't be empty. Please enter your university username:")
		}
		state.username = text
		state.stage = stagePassword
		return b.sendPlain(msg.Chat.ID, "🔒 Now enter your password:")
	case stagePassword:
		if text == "" {
			return b.sendPlain(msg.Chat.ID, "Password can't be empty. Please enter your password:")
		}
		username := state.username
		state.stage = stagePending
		if err := b.sendPlain(msg.Chat.ID, "⏳ Checking your credentials and fetching your calendar..."); err != nil {
			return err
		}
		go b.finishRegistration(msg.Chat.ID, msg.From.ID, username, text)
		return nil
	case stagePending:
		return b.sendPlain(msg.Chat.ID, "⏳ Still working on your registration, hold on...")
	default:
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "Dialog reset. Send /start to try again.")
	}
}

func (b *Bot) finishRegistration(chatID, telegramID int64, username, password string) {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	if _, err := b.userRepo.Create(ctx, telegramID, username, password); err != nil {
		log.Printf("[error] create user=%d: %v", telegramID, err)
		b.setConversation(telegramID, &conversationState{stage: stageUsername})
		_ = b.sendPlain(chatID, "❌ Something went wrong on our side. Please enter your username again:")
		return
	}

	if err := b.refreshSvc.Refresh(ctx, telegramID); err != nil {
		log.Printf("[error] registration refresh user=%d: %v", telegramID, err)
		// A user row implies working credentials, so roll it back.
		if delErr := b.userRepo.Delete(ctx, telegramID); delErr != nil {
			log.Printf("[error] rollback user=%d: %v", telegramID, delErr)
		}
		b.setConversation(telegramID, &conversationState{stage: stageUsername})
		_ = b.sendPlain(chatID, fmt.Sprintf("❌ Registration failed: %s\nPlease enter your university username again:", escape(registrationFailureReason(err))))
		return
	}

	b.clearConversation(telegramID)
	log.Printf("[info] registered user=%d", telegramID)
	_ = b.sendText(chatID, "✅ Registration complete! 🎉 Pick an option from the menu below.")
}

func registrationFailureReason(err error) string {
	if errors.Is(err, scraper.ErrInvalidCredentials) {
		return "the portal rejected your username/password"
	}
	if errors.Is(err, scraper.ErrDownloadTimeout) {
		return "the portal did not produce a calendar export in time"
	}
	return "could not fetch your calendar from the portal"
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	switch strings.TrimSpace(msg.Text) {
	case menuLabelDeadlines:
		return true, b.handleListDeadlines(ctx, msg)
	case menuLabelEnable:
		return true, b.handleSetNotifications(ctx, msg, true)
	case menuLabelDisable:
		return true, b.handleSetNotifications(ctx, msg, false)
	case menuLabelRefresh:
		return true, b.handleManualRefresh(msg)
	default:
		return false, nil
	}
}

func (b *Bot) handleListDeadlines(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.userRepo.FindByTelegramID(ctx, msg.From.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return b.sendText(msg.Chat.ID, "You are not registered yet. Send /start first.")
		}
		return err
	}

	events, err := b.eventRepo.ListIncomplete(ctx, user.ID)
	if err != nil {
		return b.sendText(msg.Chat.ID, "Could not load your deadlines, please try again later.")
	}
	if len(events) == 0 {
		return b.sendText(msg.Chat.ID, "📭 You have no open deadlines!")
	}

	var sb strings.Builder
	sb.WriteString("📅 <b>Your deadlines:</b>\n\n")
	for _, event := range events {
		due := "no due date"
		if event.EndTime != nil {
			due = event.EndTime.Local().Format("2006-01-02 15:04")
		}
		sb.WriteString(fmt.Sprintf("🔹 <b>%s</b>\n", escape(service.CleanTitle(event.Title))))
		sb.WriteString(fmt.Sprintf("📘 <b>%s</b>\n", escape(event.Category)))
		sb.WriteString(fmt.Sprintf("📆 <i>%s</i>\n", due))
		sb.WriteString(fmt.Sprintf("📝 %s\n", escape(event.Description)))
		sb.WriteString("━━━━━━━━━━━━━━━━━━━━━━\n")
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(sb.String()))
}

func (b *Bot) handleSetNotifications(ctx context.Context, msg *tgbotapi.Message, enable bool) error {
	user, err := b.userRepo.FindByTelegramID(ctx, msg.From.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return b.sendText(msg.Chat.ID, "You are not registered yet. Send /start first.")
		}
		return err
	}

	if user.NotificationsEnabled == enable {
		if enable {
			return b.sendText(msg.Chat.ID, "📢 Notifications are already on.")
		}
		return b.sendText(msg.Chat.ID, "🔕 Notifications were already off.")
	}

	if err := b.userRepo.SetNotificationsEnabled(ctx, msg.From.ID, enable); err != nil {
		return b.sendText(msg.Chat.ID, "Could not update the setting, please try again later.")
	}
	if enable {
		return b.sendText(msg.Chat.ID, "✅ Notifications enabled.")
	}
	return b.sendText(msg.Chat.ID, "❌ Notifications disabled.")
}

// handleManualRefresh kicks the browser pipeline off the polling loop and
// reports back when it finishes.
func (b *Bot) handleManualRefresh(msg *tgbotapi.Message) error {
	telegramID := msg.From.ID
	chatID := msg.Chat.ID
	if err := b.sendText(chatID, "⏳ Refreshing your deadlines..."); err != nil {
		return err
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		if err := b.refreshSvc.Refresh(ctx, telegramID); err != nil {
			log.Printf("[error] manual refresh user=%d: %v", telegramID, err)
			_ = b.sendText(chatID, "❌ Refresh failed, please try again later.")
			return
		}
		_ = b.sendText(chatID, "✅ Your deadlines are up to date.")
	}()
	return nil
}

func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) error {
	if !strings.HasPrefix(query.Data, cbDonePrefix) {
		return nil
	}
	uid := strings.TrimPrefix(query.Data, cbDonePrefix)

	user, err := b.userRepo.FindByTelegramID(ctx, query.From.ID)
	if err != nil {
		_, _ = b.api.Request(tgbotapi.NewCallback(query.ID, "You are not registered."))
		return err
	}

	if err := b.eventRepo.MarkCompleted(ctx, user.ID, uid); err != nil {
		_, _ = b.api.Request(tgbotapi.NewCallback(query.ID, "Could not save, try again."))
		return err
	}

	log.Printf("[info] event completed uid=%s user=%d", uid, query.From.ID)
	_, err = b.api.Request(tgbotapi.NewCallback(query.ID, "✅ Done. No more reminders for this one."))
	return err
}

// SendReminder implements service.Messenger: the reminder text plus a
// "Done" button that marks the event complete.
func (b *Bot) SendReminder(chatID int64, text string, uid string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(btnDone, cbDonePrefix+uid),
		),
	)
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

// sendPlain sends without the menu keyboard, used inside the registration
// dialog.
func (b *Bot) sendPlain(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	_, err := b.api.Send(msg)
	return err
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(menuLabelDeadlines)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(menuLabelRefresh)),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelEnable),
			tgbotapi.NewKeyboardButton(menuLabelDisable),
		),
	)
	keyboard.ResizeKeyboard = true
	return keyboard
}

func (b *Bot) getConversation(userID int64) *conversationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversations[userID]
}

func (b *Bot) setConversation(userID int64, state *conversationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[userID] = state
}

func (b *Bot) clearConversation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, userID)
}

func escape(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}
