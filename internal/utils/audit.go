package utils

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nextmind-ai/app-verification/internal/logging"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// AuditLog represents an audit log entry
type AuditLog struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email      string             `bson:"email" json:"email"`
	Action     string             `bson:"action" json:"action"`
	Resource   string             `bson:"resource" json:"resource"`
	ResourceID string             `bson:"resource_id,omitempty" json:"resource_id,omitempty"`
	AccountID  string             `bson:"account_id,omitempty" json:"account_id,omitempty"`
	Outcome    string             `bson:"outcome,omitempty" json:"outcome,omitempty"`
	IPAddress  string             `bson:"ip_address,omitempty" json:"ip_address,omitempty"`
	UserAgent  string             `bson:"user_agent,omitempty" json:"user_agent,omitempty"`
	RequestID  string             `bson:"request_id,omitempty" json:"request_id,omitempty"`
	Timestamp  time.Time          `bson:"timestamp" json:"timestamp"`
	Metadata   map[string]string  `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

// Audit constants
const (
	AuditActionIssue    = "ISSUE"
	AuditActionResend   = "RESEND"
	AuditActionValidate = "VALIDATE"
	AuditActionCleanup  = "CLEANUP"

	AuditResourceEmailVerification = "email_verification"
)

// AuditContext contains request information for audit logging
type AuditContext struct {
	UserID    string
	IPAddress string
	UserAgent string
	RequestID string
}

// GetAuditContextFromGin extracts audit context from Gin context
func GetAuditContextFromGin(c *gin.Context) AuditContext {
	auditCtx := AuditContext{
		IPAddress: c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
		RequestID: c.GetString("request_id"),
	}
	if auditCtx.RequestID == "" {
		auditCtx.RequestID = c.GetHeader("X-Request-ID")
	}
	if userID, ok := c.Get("user_id"); ok {
		auditCtx.UserID = fmt.Sprintf("%v", userID)
	}
	return auditCtx
}

// AuditWriter persists batches of audit entries
type AuditWriter interface {
	WriteBatch(ctx context.Context, batch []AuditLog) error
}

// MongoAuditWriter writes audit entries with an unordered bulk insert
type MongoAuditWriter struct {
	collection *mongo.Collection
}

// NewMongoAuditWriter creates a writer for the given collection
func NewMongoAuditWriter(collection *mongo.Collection) *MongoAuditWriter {
	return &MongoAuditWriter{collection: collection}
}

// WriteBatch inserts the batch in one round trip
func (w *MongoAuditWriter) WriteBatch(ctx context.Context, batch []AuditLog) error {
	operations := make([]mongo.WriteModel, 0, len(batch))
	for _, entry := range batch {
		operations = append(operations, mongo.NewInsertOneModel().SetDocument(entry))
	}

	_, err := w.collection.BulkWrite(ctx, operations, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("failed to insert audit log batch: %w", err)
	}
	return nil
}

// AuditWorker manages asynchronous, batched audit logging
type AuditWorker struct {
	writer        AuditWriter
	auditChan     chan AuditLog
	workers       int
	batchSize     int
	flushInterval time.Duration
	wg            sync.WaitGroup
	stopOnce      sync.Once
	mu            sync.RWMutex
	stopped       bool
	logger        *logging.SafeLogger
}

// NewAuditWorker creates and starts an audit worker pool
func NewAuditWorker(writer AuditWriter, workers, bufferSize int) *AuditWorker {
	if workers < 1 {
		workers = 1
	}
	if bufferSize < 1 {
		bufferSize = 100
	}

	aw := &AuditWorker{
		writer:        writer,
		auditChan:     make(chan AuditLog, bufferSize),
		workers:       workers,
		batchSize:     100,
		flushInterval: 100 * time.Millisecond,
		logger:        logging.Logger.Named("audit"),
	}
	aw.start()
	return aw
}

// start starts the audit worker pool
func (aw *AuditWorker) start() {
	aw.wg.Add(aw.workers)
	for i := 0; i < aw.workers; i++ {
		go func() {
			defer aw.wg.Done()
			aw.processAuditLogs()
		}()
	}

	aw.logger.Info("audit worker started",
		zap.Int("workers", aw.workers),
		zap.Int("buffer_size", cap(aw.auditChan)))
}

// processAuditLogs collects entries and flushes them by size or interval
func (aw *AuditWorker) processAuditLogs() {
	ticker := time.NewTicker(aw.flushInterval)
	defer ticker.Stop()

	var batch []AuditLog

	for {
		select {
		case entry, ok := <-aw.auditChan:
			if !ok {
				aw.flushBatch(batch)
				return
			}
			batch = append(batch, entry)
			if len(batch) >= aw.batchSize {
				aw.flushBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				aw.flushBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

func (aw *AuditWorker) flushBatch(batch []AuditLog) {
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := aw.writer.WriteBatch(ctx, batch); err != nil {
		aw.logger.Error("failed to write audit batch",
			zap.Int("batch_size", len(batch)),
			zap.Error(err))
		return
	}

	aw.logger.Debug("audit batch written", zap.Int("batch_size", len(batch)))
}

// Log queues an audit entry without blocking. Entries are dropped with a
// warning when the buffer is full or the worker has stopped.
func (aw *AuditWorker) Log(entry AuditLog) {
	if aw == nil {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	aw.mu.RLock()
	defer aw.mu.RUnlock()
	if aw.stopped {
		return
	}

	select {
	case aw.auditChan <- entry:
	default:
		aw.logger.Warn("audit buffer full, dropping entry",
			zap.String("action", entry.Action),
			zap.String("resource_id", entry.ResourceID))
	}
}

// LogEvent builds an entry from the request context and queues it
func (aw *AuditWorker) LogEvent(auditCtx AuditContext, action, email, resourceID, outcome string, metadata map[string]string) {
	aw.Log(AuditLog{
		Email:      email,
		Action:     action,
		Resource:   AuditResourceEmailVerification,
		ResourceID: resourceID,
		AccountID:  auditCtx.UserID,
		Outcome:    outcome,
		IPAddress:  auditCtx.IPAddress,
		UserAgent:  auditCtx.UserAgent,
		RequestID:  auditCtx.RequestID,
		Metadata:   metadata,
	})
}

// Stop drains the buffer and waits for the workers to exit
func (aw *AuditWorker) Stop() {
	if aw == nil {
		return
	}
	aw.stopOnce.Do(func() {
		aw.mu.Lock()
		aw.stopped = true
		close(aw.auditChan)
		aw.mu.Unlock()
		aw.wg.Wait()
	})
}

// Stats returns current audit worker statistics
func (aw *AuditWorker) Stats() map[string]interface{} {
	if aw == nil {
		return map[string]interface{}{
			"status": "not_initialized",
		}
	}

	return map[string]interface{}{
		"status":           "running",
		"workers":          aw.workers,
		"buffer_capacity":  cap(aw.auditChan),
		"buffer_usage":     len(aw.auditChan),
		"buffer_available": cap(aw.auditChan) - len(aw.auditChan),
	}
}
