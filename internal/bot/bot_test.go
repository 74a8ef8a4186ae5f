package bot

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"scribe/internal/config"
	"scribe/internal/download"
	"scribe/internal/queue"
	"scribe/internal/testsupport"
	"scribe/internal/transcript"
)

type fakeAPI struct {
	mu        sync.Mutex
	sent      []tgbotapi.Chattable
	requested []tgbotapi.Chattable
	file      tgbotapi.File
	messageID int
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	f.messageID++
	return tgbotapi.Message{MessageID: f.messageID}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = append(f.requested, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetFile(cfg tgbotapi.FileConfig) (tgbotapi.File, error) {
	return f.file, nil
}

func (f *fakeAPI) GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (f *fakeAPI) StopReceivingUpdates() {}

func (f *fakeAPI) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var texts []string
	for _, c := range f.sent {
		if msg, ok := c.(tgbotapi.MessageConfig); ok {
			texts = append(texts, msg.Text)
		}
	}
	return texts
}

type fakeFetcher struct {
	mu   sync.Mutex
	urls []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url, dest string, progress download.Progress) error {
	f.mu.Lock()
	f.urls = append(f.urls, url)
	f.mu.Unlock()
	return os.WriteFile(dest, []byte("media payload"), 0o644)
}

type fakeResponder struct {
	answer       string
	lastQuestion string
	lastSystem   string
	historySeen  int
}

func (f *fakeResponder) Chat(ctx context.Context, systemPrompt string, history []queue.Message, question string) (string, error) {
	f.lastSystem = systemPrompt
	f.lastQuestion = question
	f.historySeen = len(history)
	return f.answer, nil
}

func newTestBot(t *testing.T) (*Bot, *fakeAPI, *fakeFetcher, *fakeResponder, *queue.Store, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	api := &fakeAPI{file: tgbotapi.File{FileID: "remote", FilePath: "voice/file_1.oga"}}
	fetch := &fakeFetcher{}
	respond := &fakeResponder{answer: "the speaker talks about birds"}
	b := newBot(cfg, api, store, fetch, respond, nil)
	return b, api, fetch, respond, store, cfg
}

func audioMessage(chatID int64, messageID int, fileName string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: messageID,
		Chat:      &tgbotapi.Chat{ID: chatID},
		Audio:     &tgbotapi.Audio{FileID: "audio-file-id", FileName: fileName},
	}
}

func textMessage(chatID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		MessageID: 99,
		Chat:      &tgbotapi.Chat{ID: chatID},
		Text:      text,
	}
}

func commandMessage(chatID int64, command string) *tgbotapi.Message {
	msg := textMessage(chatID, "/"+command)
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(command) + 1}}
	return msg
}

func TestUploadQueuesItemAndSendsProgress(t *testing.T) {
	b, api, fetch, _, store, cfg := newTestBot(t)

	b.handleUpdate(context.Background(), tgbotapi.Update{Message: audioMessage(42, 7, "talk.mp3")})

	items, err := store.List(context.Background(), queue.StatusPending)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("queued items = %d, want 1", len(items))
	}
	item := items[0]
	if item.ChatID != 42 || item.SourceName != "talk.mp3" || item.HasVideo {
		t.Errorf("item = %+v", item)
	}
	if !strings.HasPrefix(item.SourcePath, cfg.Paths.IncomingDir) {
		t.Errorf("source stored outside incoming dir: %s", item.SourcePath)
	}
	if _, err := os.Stat(item.SourcePath); err != nil {
		t.Errorf("downloaded file missing: %v", err)
	}
	if item.MessageID == 0 {
		t.Error("progress message id not persisted")
	}
	if len(fetch.urls) != 1 {
		t.Errorf("fetch calls = %d, want 1", len(fetch.urls))
	}
	texts := api.sentTexts()
	if len(texts) != 1 || !strings.Contains(texts[0], "talk.mp3") {
		t.Errorf("progress message = %v", texts)
	}
}

func TestVideoUploadFlagsVideo(t *testing.T) {
	b, _, _, _, store, _ := newTestBot(t)

	msg := &tgbotapi.Message{
		MessageID: 8,
		Chat:      &tgbotapi.Chat{ID: 42},
		Video:     &tgbotapi.Video{FileID: "vid", FileName: "lecture.mp4"},
	}
	b.handleUpdate(context.Background(), tgbotapi.Update{Message: msg})

	items, _ := store.List(context.Background(), queue.StatusPending)
	if len(items) != 1 || !items[0].HasVideo {
		t.Fatalf("video upload not flagged: %+v", items)
	}
}

func TestCaptionOverridesLanguage(t *testing.T) {
	b, _, _, _, store, _ := newTestBot(t)

	msg := audioMessage(42, 9, "talk.mp3")
	msg.Caption = "german"
	b.handleUpdate(context.Background(), tgbotapi.Update{Message: msg})

	items, _ := store.List(context.Background(), queue.StatusPending)
	if len(items) != 1 {
		t.Fatalf("queued items = %d, want 1", len(items))
	}
	if items[0].Language != "de" {
		t.Fatalf("language = %q, want de", items[0].Language)
	}
}

func TestStartCommandSendsWelcome(t *testing.T) {
	b, api, _, _, _, _ := newTestBot(t)

	b.handleUpdate(context.Background(), tgbotapi.Update{Message: commandMessage(42, "start")})

	texts := api.sentTexts()
	if len(texts) != 1 || !strings.Contains(texts[0], "transcribe") {
		t.Errorf("welcome = %v", texts)
	}
}

func TestChatWithoutSessionPrompts(t *testing.T) {
	b, api, _, respond, _, _ := newTestBot(t)

	b.handleUpdate(context.Background(), tgbotapi.Update{Message: textMessage(42, "what was said?")})

	if respond.lastQuestion != "" {
		t.Error("agent should not be consulted without a session")
	}
	texts := api.sentTexts()
	if len(texts) != 1 || !strings.Contains(texts[0], "Send an audio or video file") {
		t.Errorf("prompt = %v", texts)
	}
}

func completedItem(t *testing.T, store *queue.Store, cfg *config.Config, chatID int64) *queue.Item {
	t.Helper()
	item, err := store.NewUpload(context.Background(), chatID, 0, "talk.mp3", "/tmp/talk.mp3", "en", false)
	if err != nil {
		t.Fatalf("NewUpload: %v", err)
	}

	doc := &transcript.Document{
		SourceName: "talk.mp3",
		Language:   "en",
		Entries: []transcript.Entry{
			{Start: 0, End: 2.5, Speaker: "SPEAKER_00", Text: "hello everyone"},
			{Start: 2.5, End: 5, Speaker: "SPEAKER_01", Text: "good morning"},
		},
	}
	item.TranscriptPath = filepath.Join(cfg.Paths.WorkDir, "talk.transcript.json")
	if err := doc.Save(item.TranscriptPath); err != nil {
		t.Fatalf("save transcript: %v", err)
	}

	item.SubtitlePath = filepath.Join(cfg.Paths.WorkDir, "talk.srt")
	if err := transcript.WriteSRT(item.SubtitlePath, doc.Entries); err != nil {
		t.Fatalf("write srt: %v", err)
	}

	item.Status = queue.StatusCompleted
	if err := store.Update(context.Background(), item); err != nil {
		t.Fatalf("Update: %v", err)
	}
	return item
}

func TestChatAnswersFromBoundTranscript(t *testing.T) {
	b, api, _, respond, store, cfg := newTestBot(t)
	item := completedItem(t, store, cfg, 42)
	if err := store.BindSession(context.Background(), 42, item.ID); err != nil {
		t.Fatalf("BindSession: %v", err)
	}

	b.handleUpdate(context.Background(), tgbotapi.Update{Message: textMessage(42, "who spoke first?")})

	if respond.lastQuestion != "who spoke first?" {
		t.Errorf("question = %q", respond.lastQuestion)
	}
	if !strings.Contains(respond.lastSystem, "hello everyone") {
		t.Error("system prompt does not pin the transcript")
	}

	texts := api.sentTexts()
	if len(texts) != 1 || texts[0] != "the speaker talks about birds" {
		t.Errorf("reply = %v", texts)
	}

	history, err := store.History(context.Background(), 42, item.ID, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 || history[0].Role != queue.RoleUser || history[1].Role != queue.RoleAssistant {
		t.Errorf("history = %+v", history)
	}
}

func TestChatSecondTurnCarriesHistory(t *testing.T) {
	b, _, _, respond, store, cfg := newTestBot(t)
	item := completedItem(t, store, cfg, 42)
	if err := store.BindSession(context.Background(), 42, item.ID); err != nil {
		t.Fatalf("BindSession: %v", err)
	}

	b.handleUpdate(context.Background(), tgbotapi.Update{Message: textMessage(42, "first question")})
	b.handleUpdate(context.Background(), tgbotapi.Update{Message: textMessage(42, "second question")})

	if respond.historySeen != 2 {
		t.Errorf("history length on second turn = %d, want 2", respond.historySeen)
	}
}

func TestItemCompletedDeliversSubtitlesAndBindsSession(t *testing.T) {
	b, api, _, _, store, cfg := newTestBot(t)
	item := completedItem(t, store, cfg, 42)
	item.MessageID = 5
	if err := store.Update(context.Background(), item); err != nil {
		t.Fatalf("Update: %v", err)
	}

	b.ItemCompleted(context.Background(), item)

	var delivered bool
	for _, c := range api.sent {
		if doc, ok := c.(tgbotapi.DocumentConfig); ok {
			delivered = true
			if !strings.Contains(doc.Caption, "2 segments") {
				t.Errorf("caption = %q", doc.Caption)
			}
		}
	}
	if !delivered {
		t.Fatal("subtitle document not sent")
	}

	bound, ok, err := store.SessionItem(context.Background(), 42)
	if err != nil || !ok || bound.ID != item.ID {
		t.Errorf("session not bound: %v %v %v", bound, ok, err)
	}
}

func TestItemFailedExplainsFailure(t *testing.T) {
	b, api, _, _, store, _ := newTestBot(t)
	item, _ := store.NewUpload(context.Background(), 42, 0, "talk.mp3", "/tmp/talk.mp3", "", false)
	item.Status = queue.StatusFailed
	item.ErrorMessage = "ffmpeg exited with status 1"

	b.ItemFailed(context.Background(), item)

	texts := api.sentTexts()
	if len(texts) != 1 || !strings.Contains(texts[0], "ffmpeg exited with status 1") {
		t.Errorf("failure message = %v", texts)
	}
}

func TestCallbackResendsSubtitles(t *testing.T) {
	b, api, _, _, store, cfg := newTestBot(t)
	item := completedItem(t, store, cfg, 42)

	query := &tgbotapi.CallbackQuery{
		ID:      "cb1",
		Data:    "srt:" + strconv.FormatInt(item.ID, 10),
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 42}},
	}
	b.handleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: query})

	var delivered bool
	for _, c := range api.sent {
		if _, ok := c.(tgbotapi.DocumentConfig); ok {
			delivered = true
		}
	}
	if !delivered {
		t.Error("subtitles not re-sent")
	}
	if len(api.requested) == 0 {
		t.Error("callback never acknowledged")
	}
}

func TestProgressBar(t *testing.T) {
	cases := map[string]struct {
		percent float64
		want    string
	}{
		"empty":    {0, "□□□□□□□□□□"},
		"third":    {32, "■■■□□□□□□□"},
		"full":     {100, "■■■■■■■■■■"},
		"overflow": {140, "■■■■■■■■■■"},
		"negative": {-5, "□□□□□□□□□□"},
	}
	for name, tc := range cases {
		if got := progressBar(tc.percent); got != tc.want {
			t.Errorf("%s: progressBar(%v) = %q, want %q", name, tc.percent, got, tc.want)
		}
	}
}

func TestProgressTextShowsStepCounter(t *testing.T) {
	item := &queue.Item{
		SourceName:      "talk.mp3",
		Status:          queue.StatusDiarizing,
		ProgressPercent: 45,
		ProgressMessage: "attributing speakers",
	}
	text := progressText(item)
	for _, want := range []string{"talk.mp3", "45%", "Step 3/5", "attributing speakers"} {
		if !strings.Contains(text, want) {
			t.Errorf("progress text missing %q:\n%s", want, text)
		}
	}
}
