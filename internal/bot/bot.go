// Package bot implements the Telegram surface: upload intake, progress
// updates, result delivery, and transcript chat.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"scribe/internal/agent"
	"scribe/internal/config"
	"scribe/internal/download"
	"scribe/internal/fileutil"
	"scribe/internal/language"
	"scribe/internal/logging"
	"scribe/internal/queue"
	"scribe/internal/transcript"
)

const (
	welcomeText = "Send me an audio or video file and I will transcribe it with speaker labels. " +
		"Once the transcript is ready you can ask me questions about it."
	updatePollTimeout   = 30
	progressEditPeriod  = 3 * time.Second
	maxLanguageHintSize = 12
)

// telegramAPI is the slice of the Bot API client the bot actually uses.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFile(cfg tgbotapi.FileConfig) (tgbotapi.File, error)
	GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type fetcher interface {
	Fetch(ctx context.Context, url, dest string, progress download.Progress) error
}

type responder interface {
	Chat(ctx context.Context, systemPrompt string, history []queue.Message, question string) (string, error)
}

// Bot routes Telegram updates into the queue and pushes results back to the
// originating chats. It implements workflow.Events.
type Bot struct {
	cfg    *config.Config
	api    telegramAPI
	store  *queue.Store
	fetch  fetcher
	agent  responder
	logger *slog.Logger
	token  string

	mu       sync.Mutex
	lastEdit map[int64]string
	wg       sync.WaitGroup
}

// New dials the Bot API with the configured token.
func New(cfg *config.Config, store *queue.Store, agentClient *agent.Client, logger *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram connect: %w", err)
	}
	if cfg.Telegram.RequestTimeout > 0 {
		if client, ok := api.Client.(*http.Client); ok {
			client.Timeout = time.Duration(cfg.Telegram.RequestTimeout) * time.Second
		}
	}
	downloader := download.New(time.Duration(cfg.Workflow.DownloadTimeout)*time.Second, logger)
	return newBot(cfg, api, store, downloader, agentClient, logger), nil
}

func newBot(cfg *config.Config, api telegramAPI, store *queue.Store, fetch fetcher, agentClient responder, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Bot{
		cfg:      cfg,
		api:      api,
		store:    store,
		fetch:    fetch,
		agent:    agentClient,
		logger:   logging.NewComponentLogger(logger, "bot"),
		token:    cfg.Telegram.Token,
		lastEdit: make(map[int64]string),
	}
}

// Run consumes updates until the context is canceled.
func (b *Bot) Run(ctx context.Context) {
	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = updatePollTimeout
	updates := b.api.GetUpdatesChan(updateCfg)

	b.wg.Add(1)
	go b.watchProgress(ctx)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.wg.Wait()
			return
		case update, ok := <-updates:
			if !ok {
				b.wg.Wait()
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}
	msg := update.Message
	if msg == nil {
		return
	}

	switch {
	case msg.IsCommand():
		b.handleCommand(ctx, msg)
	default:
		if fileID, name, hasVideo, ok := uploadAttachment(msg); ok {
			b.handleUpload(ctx, msg, fileID, name, hasVideo)
			return
		}
		if strings.TrimSpace(msg.Text) != "" {
			b.handleChat(ctx, msg)
		}
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start", "help":
		b.reply(msg.Chat.ID, welcomeText)
	case "reset":
		if err := b.store.ClearSession(ctx, msg.Chat.ID); err != nil {
			b.logger.Error("failed to clear session", logging.Error(err))
			b.reply(msg.Chat.ID, "Could not clear the session, try again.")
			return
		}
		b.reply(msg.Chat.ID, "Session cleared. Send a new file to start over.")
	default:
		b.reply(msg.Chat.ID, "Unknown command. Send a media file or use /help.")
	}
}

// uploadAttachment extracts the transcribable attachment from a message.
func uploadAttachment(msg *tgbotapi.Message) (fileID, name string, hasVideo, ok bool) {
	switch {
	case msg.Voice != nil:
		return msg.Voice.FileID, fmt.Sprintf("voice_%d.ogg", msg.MessageID), false, true
	case msg.Audio != nil:
		name := msg.Audio.FileName
		if name == "" {
			name = fmt.Sprintf("audio_%d.mp3", msg.MessageID)
		}
		return msg.Audio.FileID, name, false, true
	case msg.Video != nil:
		name := msg.Video.FileName
		if name == "" {
			name = fmt.Sprintf("video_%d.mp4", msg.MessageID)
		}
		return msg.Video.FileID, name, true, true
	case msg.VideoNote != nil:
		return msg.VideoNote.FileID, fmt.Sprintf("note_%d.mp4", msg.MessageID), true, true
	case msg.Document != nil:
		name := msg.Document.FileName
		if name == "" {
			name = fmt.Sprintf("document_%d", msg.MessageID)
		}
		return msg.Document.FileID, name, strings.HasPrefix(msg.Document.MimeType, "video/"), true
	}
	return "", "", false, false
}

func (b *Bot) handleUpload(ctx context.Context, msg *tgbotapi.Message, fileID, name string, hasVideo bool) {
	chatID := msg.Chat.ID

	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		b.logger.Error("file lookup failed", logging.Error(err))
		b.reply(chatID, "Could not fetch that file from Telegram, try again.")
		return
	}

	dest := filepath.Join(b.cfg.Paths.IncomingDir,
		fmt.Sprintf("%d_%d_%s", chatID, msg.MessageID, fileutil.SafeBaseName(name)))
	if err := b.fetch.Fetch(ctx, b.fileURL(file), dest, nil); err != nil {
		b.logger.Error("upload download failed", logging.Error(err))
		b.reply(chatID, "Downloading the file failed, try again.")
		return
	}

	item, err := b.store.NewUpload(ctx, chatID, 0, name, dest, b.languageHint(msg), hasVideo)
	if err != nil {
		b.logger.Error("enqueue failed", logging.Error(err))
		b.reply(chatID, "Could not queue the file, try again.")
		return
	}

	sent, err := b.api.Send(tgbotapi.NewMessage(chatID, progressText(item)))
	if err != nil {
		b.logger.Warn("progress message send failed", logging.Error(err))
		return
	}
	item.MessageID = sent.MessageID
	if err := b.store.Update(ctx, item); err != nil {
		b.logger.Warn("failed to persist progress message id", logging.Error(err))
	}
	b.logger.Info("upload queued",
		logging.Int64(logging.FieldItemID, item.ID),
		logging.String("source", name),
		logging.Bool("video", hasVideo))
}

// languageHint resolves the transcription language: a short caption wins over
// the configured default.
func (b *Bot) languageHint(msg *tgbotapi.Message) string {
	caption := strings.TrimSpace(msg.Caption)
	if caption != "" && len(caption) <= maxLanguageHintSize && !strings.ContainsAny(caption, " \n") {
		if iso := language.ToISO2(caption); iso != "" {
			return iso
		}
	}
	return b.cfg.STT.Language
}

func (b *Bot) handleChat(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	item, bound, err := b.store.SessionItem(ctx, chatID)
	if err != nil {
		b.logger.Error("session lookup failed", logging.Error(err))
		return
	}
	if !bound {
		b.reply(chatID, "Send an audio or video file first, then ask me about its transcript.")
		return
	}
	if item.TranscriptPath == "" {
		b.reply(chatID, "The transcript is not ready yet, hang on.")
		return
	}

	doc, err := transcript.Load(item.TranscriptPath)
	if err != nil {
		b.logger.Error("transcript load failed", logging.Error(err))
		b.reply(chatID, "The transcript could not be read. Try /reset and upload again.")
		return
	}

	history, err := b.store.History(ctx, chatID, item.ID, b.cfg.Agent.HistoryLimit)
	if err != nil {
		b.logger.Error("history load failed", logging.Error(err))
		history = nil
	}

	answer, err := b.agent.Chat(ctx, agent.SystemPrompt(doc), history, msg.Text)
	if err != nil {
		b.logger.Error("agent chat failed", logging.Error(err))
		b.reply(chatID, "I could not answer that right now, try again in a moment.")
		return
	}

	if err := b.store.AppendMessage(ctx, chatID, item.ID, queue.RoleUser, msg.Text); err != nil {
		b.logger.Warn("failed to record question", logging.Error(err))
	}
	if err := b.store.AppendMessage(ctx, chatID, item.ID, queue.RoleAssistant, answer); err != nil {
		b.logger.Warn("failed to record answer", logging.Error(err))
	}
	b.reply(chatID, answer)
}

func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	defer func() {
		if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
			b.logger.Debug("callback ack failed", logging.Error(err))
		}
	}()
	if query.Message == nil {
		return
	}
	chatID := query.Message.Chat.ID

	action, rawID, found := strings.Cut(query.Data, ":")
	if !found {
		return
	}
	itemID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return
	}
	item, err := b.store.GetByID(ctx, itemID)
	if err != nil {
		b.reply(chatID, "That transcript is no longer available.")
		return
	}

	switch action {
	case "chat":
		if err := b.store.BindSession(ctx, chatID, item.ID); err != nil {
			b.logger.Error("session bind failed", logging.Error(err))
			return
		}
		b.reply(chatID, fmt.Sprintf("Ask me anything about %s.", item.SourceName))
	case "srt":
		b.sendSubtitles(chatID, item)
	}
}

func (b *Bot) sendSubtitles(chatID int64, item *queue.Item) {
	if item.SubtitlePath == "" {
		b.reply(chatID, "No subtitle file was produced for this upload.")
		return
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(item.SubtitlePath))
	doc.Caption = item.SourceName
	if _, err := b.api.Send(doc); err != nil {
		b.logger.Error("subtitle send failed", logging.Error(err))
	}
}

// ItemCompleted delivers the finished transcript to the originating chat and
// binds the chat session to it.
func (b *Bot) ItemCompleted(ctx context.Context, item *queue.Item) {
	b.editProgress(item)

	caption := fmt.Sprintf("Transcript for %s", item.SourceName)
	if doc, err := transcript.Load(item.TranscriptPath); err == nil {
		stats := doc.Summarize()
		caption = fmt.Sprintf("Transcript for %s: %d segments", item.SourceName, stats.Total)
		if stats.Failed > 0 {
			caption += fmt.Sprintf(" (%d could not be recognized)", stats.Failed)
		}
	}

	message := tgbotapi.NewDocument(item.ChatID, tgbotapi.FilePath(item.SubtitlePath))
	message.Caption = caption
	message.ReplyMarkup = resultKeyboard(item.ID)
	if _, err := b.api.Send(message); err != nil {
		b.logger.Error("result delivery failed",
			logging.Int64(logging.FieldItemID, item.ID),
			logging.Error(err))
		return
	}

	if err := b.store.BindSession(ctx, item.ChatID, item.ID); err != nil {
		b.logger.Warn("auto session bind failed", logging.Error(err))
	}
}

// ItemFailed tells the originating chat why processing stopped.
func (b *Bot) ItemFailed(ctx context.Context, item *queue.Item) {
	b.editProgress(item)

	text := fmt.Sprintf("Transcription of %s failed: %s", item.SourceName, item.ErrorMessage)
	if item.Status == queue.StatusReview {
		text = fmt.Sprintf("Transcription of %s needs attention: %s", item.SourceName, item.ReviewReason)
	}
	b.reply(item.ChatID, text)
}

func resultKeyboard(itemID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Chat about it", fmt.Sprintf("chat:%d", itemID)),
			tgbotapi.NewInlineKeyboardButtonData("Subtitles again", fmt.Sprintf("srt:%d", itemID)),
		),
	)
}

// watchProgress periodically refreshes the progress message of every item
// that is mid-pipeline.
func (b *Bot) watchProgress(ctx context.Context) {
	defer b.wg.Done()
	ticker := time.NewTicker(progressEditPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			items, err := b.store.List(ctx,
				queue.StatusExtracting, queue.StatusConverting, queue.StatusDiarizing,
				queue.StatusTranscribing, queue.StatusMerging)
			if err != nil {
				b.logger.Debug("progress poll failed", logging.Error(err))
				continue
			}
			for _, item := range items {
				b.editProgress(item)
			}
		}
	}
}

// editProgress updates the tracked progress message, skipping edits whose
// text did not change since the Bot API rejects identical edits.
func (b *Bot) editProgress(item *queue.Item) {
	if item.MessageID == 0 || item.ChatID == 0 {
		return
	}
	text := progressText(item)

	b.mu.Lock()
	if b.lastEdit[item.ID] == text {
		b.mu.Unlock()
		return
	}
	b.lastEdit[item.ID] = text
	b.mu.Unlock()

	edit := tgbotapi.NewEditMessageText(item.ChatID, item.MessageID, text)
	if _, err := b.api.Request(edit); err != nil {
		b.logger.Debug("progress edit failed", logging.Error(err))
	}
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.logger.Error("message send failed", logging.Error(err))
	}
}

func (b *Bot) fileURL(file tgbotapi.File) string {
	return file.Link(b.token)
}
