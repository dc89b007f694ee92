package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/mmdatafocus/billing_backend/config"
	"github.com/mmdatafocus/billing_backend/utils"
	"github.com/sirupsen/logrus"
)

// ObjectWriter stores one object.
type ObjectWriter interface {
	Write(ctx context.Context, object string, data []byte, contentType string) error
}

type GCSWriter struct {
	client *storage.Client
	bucket string
}

func NewGCSWriter(client *storage.Client, bucket string) *GCSWriter {
	return &GCSWriter{client: client, bucket: bucket}
}

func (w *GCSWriter) Write(ctx context.Context, object string, data []byte, contentType string) error {
	return utils.UploadBytesToGCS(ctx, w.client, w.bucket, object, data, contentType)
}

// ArchivingDispatcher keeps a copy of every outgoing message, then delegates.
// An archive failure is logged and does not block delivery.
type ArchivingDispatcher struct {
	next   Dispatcher
	writer ObjectWriter
	clock  utils.Clock
	logger *logrus.Logger
}

func NewArchivingDispatcher(next Dispatcher, writer ObjectWriter, clock utils.Clock, logger *logrus.Logger) *ArchivingDispatcher {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &ArchivingDispatcher{next: next, writer: writer, clock: clock, logger: logger}
}

func archivePrefix(msg Message, stamp string) string {
	id := msg.InvoiceId
	if id == "" {
		id = "message"
	}
	return path.Join("deliveries", id, stamp)
}

func (a *ArchivingDispatcher) Send(ctx context.Context, msg Message) error {
	if err := a.archive(ctx, msg); err != nil {
		config.LogError(a.logger, "notify", "ArchivingDispatcher.Send", "archive", msg.InvoiceId, err)
	}
	return a.next.Send(ctx, msg)
}

func (a *ArchivingDispatcher) archive(ctx context.Context, msg Message) error {
	prefix := archivePrefix(msg, a.clock.Now().UTC().Format("20060102T150405Z"))

	envelope := msg
	envelope.Attachments = nil
	meta, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	if err := a.writer.Write(ctx, prefix+"/message.json", meta, "application/json"); err != nil {
		return fmt.Errorf("archive message: %w", err)
	}
	for _, att := range msg.Attachments {
		name := strings.ReplaceAll(att.Filename, "/", "_")
		if err := a.writer.Write(ctx, prefix+"/"+name, att.Data, att.ContentType); err != nil {
			return fmt.Errorf("archive attachment %s: %w", att.Filename, err)
		}
	}
	return nil
}
