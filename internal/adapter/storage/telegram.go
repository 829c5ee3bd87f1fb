package storage

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/semmidev/dbtoolkit/internal/config"
)

// Telegram accepts documents up to 50 MB from bots.
const telegramMaxFile = 50 << 20

// TelegramStorage posts a notice, or the artifact itself when small enough,
// to a chat. It cannot list or delete, so retention skips it.
type TelegramStorage struct {
	bot        *tgbotapi.BotAPI
	chatID     int64
	sendFile   bool
	notifyOnly bool
}

func NewTelegram(cfg *config.UploadTarget) (*TelegramStorage, error) {
	chatID, err := strconv.ParseInt(cfg.ChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram chat_id %q: %w", cfg.ChatID, err)
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	return &TelegramStorage{
		bot:        bot,
		chatID:     chatID,
		sendFile:   cfg.SendFile,
		notifyOnly: cfg.NotifyOnly,
	}, nil
}

func backupNotice(remoteName string, size int64, at time.Time) string {
	return fmt.Sprintf("Backup created\n\nFile: %s\nSize: %s\nTime: %s",
		remoteName, humanize.Bytes(uint64(size)), at.Format("2006-01-02 15:04:05"))
}

func (t *TelegramStorage) Upload(ctx context.Context, localPath string, remoteName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fileInfo, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	if t.notifyOnly || !t.sendFile || fileInfo.Size() > telegramMaxFile {
		msg := tgbotapi.NewMessage(t.chatID, backupNotice(remoteName, fileInfo.Size(), fileInfo.ModTime()))
		if _, err := t.bot.Send(msg); err != nil {
			return fmt.Errorf("failed to send telegram notification: %w", err)
		}
		return nil
	}

	doc := tgbotapi.NewDocument(t.chatID, tgbotapi.FilePath(localPath))
	doc.Caption = fmt.Sprintf("Backup: %s (%s)", remoteName, humanize.Bytes(uint64(fileInfo.Size())))
	if _, err := t.bot.Send(doc); err != nil {
		return fmt.Errorf("failed to send telegram file: %w", err)
	}
	return nil
}

func (t *TelegramStorage) List(ctx context.Context) ([]string, error) {
	return []string{}, nil
}

func (t *TelegramStorage) Delete(ctx context.Context, remoteName string) error {
	return nil
}

func (t *TelegramStorage) GetOldFiles(ctx context.Context, cutoffTime time.Time) ([]string, error) {
	return []string{}, nil
}

// SendNotification posts a plain message, used for failure alerts.
func (t *TelegramStorage) SendNotification(message string) error {
	_, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, message))
	return err
}
