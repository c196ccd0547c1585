// Copyright 2024-2026 Aiku AI

package relay

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"path"

	"github.com/rs/zerolog"
	"golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"github.com/aiku/discord-telegram-bridge/pkg/relay/discordfmt"
)

const (
	jpegQuality = 90
	// maxEmojiDownloads bounds the concurrent custom emoji downloads of one
	// message.
	maxEmojiDownloads = 4
)

// Placeholders sent instead of stickers that cannot be shown as images.
const (
	stickerAnimatedText       = "[Sent an animated/video sticker]"
	stickerPreviewFailedText  = "[Sent a sticker (preview failed)]"
	stickerDownloadFailedText = "[Sent a sticker (download failed)]"
)

func nonImageAttachments(attachments []Attachment) []Attachment {
	var out []Attachment
	for _, a := range attachments {
		if !a.IsImage() {
			out = append(out, a)
		}
	}
	return out
}

// downloadImages fetches the image attachments of a Discord message. It
// returns the photos to upload and the attachments to link instead, which
// are the non-image ones plus images that failed to download.
func (r *Relay) downloadImages(ctx context.Context, attachments []Attachment, log zerolog.Logger) (photos []OutgoingFile, linked []Attachment) {
	for _, a := range attachments {
		if !a.IsImage() {
			linked = append(linked, a)
			continue
		}
		var data []byte
		err := r.callDiscord(ctx, func(ctx context.Context) error {
			var err error
			data, err = r.downloader.Download(ctx, a.URL)
			return err
		})
		if err != nil {
			log.Warn().Err(err).Str("file_name", a.Filename).Msg("Failed to download attachment, linking it instead")
			linked = append(linked, a)
			continue
		}
		photos = append(photos, OutgoingFile{Name: a.Filename, ContentType: a.ContentType, Data: data})
	}
	return photos, linked
}

// downloadEmojis fetches custom emoji images concurrently. Failed downloads
// are dropped; the rest keep their order.
func (r *Relay) downloadEmojis(ctx context.Context, emojis []discordfmt.CustomEmoji, log zerolog.Logger) []OutgoingFile {
	if len(emojis) == 0 {
		return nil
	}
	results := make([]*OutgoingFile, len(emojis))
	var g errgroup.Group
	g.SetLimit(maxEmojiDownloads)
	for i, emoji := range emojis {
		g.Go(func() error {
			var data []byte
			err := r.callDiscord(ctx, func(ctx context.Context) error {
				var err error
				data, err = r.downloader.Download(ctx, emoji.URL())
				return err
			})
			if err != nil {
				log.Warn().Err(err).Str("emoji_id", emoji.ID).Msg("Failed to download custom emoji")
				return nil
			}
			contentType := "image/png"
			if emoji.Animated {
				contentType = "image/gif"
			}
			results[i] = &OutgoingFile{
				Name:        emoji.Name + path.Ext(emoji.URL()),
				ContentType: contentType,
				Data:        data,
			}
			return nil
		})
	}
	_ = g.Wait()
	files := make([]OutgoingFile, 0, len(results))
	for _, f := range results {
		if f != nil {
			files = append(files, *f)
		}
	}
	return files
}

// reencodeJPEG decodes an image and encodes it as a baseline JPEG.
func reencodeJPEG(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	var buf bytes.Buffer
	if err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// webpToPNG converts a static WEBP sticker to PNG.
func webpToPNG(data []byte) ([]byte, error) {
	img, err := webp.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode webp: %w", err)
	}
	var buf bytes.Buffer
	if err = png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// telegramPhoto downloads a Telegram photo and prepares it for Discord.
// Photos that cannot be re-encoded are sent as downloaded.
func (r *Relay) telegramPhoto(ctx context.Context, fileID string, log zerolog.Logger) (*OutgoingFile, error) {
	data, err := r.downloadTelegramFile(ctx, fileID)
	if err != nil {
		return nil, err
	}
	converted, err := reencodeJPEG(data)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to re-encode Telegram photo, sending original")
		return &OutgoingFile{Name: "photo_original.jpg", ContentType: "image/jpeg", Data: data}, nil
	}
	return &OutgoingFile{Name: "photo.jpg", ContentType: "image/jpeg", Data: converted}, nil
}

// telegramSticker prepares a sticker for Discord. It returns either a PNG
// file or a placeholder text when the sticker can't be shown.
func (r *Relay) telegramSticker(ctx context.Context, sticker *TelegramSticker, log zerolog.Logger) (*OutgoingFile, string) {
	if sticker.Animated || sticker.Video {
		return nil, stickerAnimatedText
	}
	data, err := r.downloadTelegramFile(ctx, sticker.FileID)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to download sticker")
		return nil, stickerDownloadFailedText
	}
	converted, err := webpToPNG(data)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to convert sticker")
		return nil, stickerPreviewFailedText
	}
	return &OutgoingFile{Name: "sticker.png", ContentType: "image/png", Data: converted}, ""
}

func (r *Relay) downloadTelegramFile(ctx context.Context, fileID string) ([]byte, error) {
	var data []byte
	err := r.callDiscord(ctx, func(ctx context.Context) error {
		var err error
		data, err = r.telegram.DownloadFile(ctx, fileID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download telegram file: %w", err)
	}
	return data, nil
}
