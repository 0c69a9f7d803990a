package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/vaultchat/vaultchat/internal/ai"
	"github.com/vaultchat/vaultchat/internal/blob"
	"github.com/vaultchat/vaultchat/internal/chat"
	"github.com/vaultchat/vaultchat/internal/config"
	"github.com/vaultchat/vaultchat/internal/queue"
)

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	blobs, err := blob.Open(cfg)
	if err != nil {
		logger.Fatal("blob store", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}

	client := ai.NewAnthropicClient(cfg.AnthropicBaseURL, cfg.AnthropicAPIKey, cfg.AnthropicVersion, cfg.Model, cfg.MaxTokens)
	chats := chat.NewStore(blobs, cfg.ChatsPrefix(), logger)
	jobs := chat.NewJobStore(blobs, cfg.JobsPrefix())

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		logger.Fatal("rabbit dial", zap.Error(err))
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("rabbit channel", zap.Error(err))
	}
	defer ch.Close()

	if err := queue.DeclareTopology(ch, cfg.RabbitQueue); err != nil {
		logger.Fatal("queue declare", zap.Error(err))
	}

	concurrency := workerConcurrency()
	if err := ch.Qos(concurrency, 0, false); err != nil {
		logger.Fatal("qos", zap.Error(err))
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		logger.Fatal("consume", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("worker started",
		zap.String("queue", cfg.RabbitQueue),
		zap.Int("concurrency", concurrency),
	)

	deliveries := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range deliveries {
				var m queue.JobMessage
				if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
					logger.Warn("bad message", zap.Int("worker", workerID), zap.Error(err))
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				if err := handleJob(ctx, client, chats, jobs, m.JobID); err != nil {
					logger.Warn("job failed",
						zap.Int("worker", workerID),
						zap.String("job_id", m.JobID),
						zap.Duration("cost", time.Since(start)),
						zap.Error(err),
					)
					_ = d.Nack(false, false)
					continue
				}

				if err := d.Ack(false); err != nil {
					logger.Warn("ack failed", zap.Int("worker", workerID), zap.String("job_id", m.JobID), zap.Error(err))
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutting down")
			close(deliveries)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				logger.Warn("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			deliveries <- d
		}
	}
}

// handleJob runs one queued completion: continue the referenced chat (or
// start a fresh one), call the provider without streaming, persist the
// transcript and mirror the outcome onto the job record.
func handleJob(ctx context.Context, provider ai.Provider, chats *chat.Store, jobs *chat.JobStore, jobID string) error {
	j, err := jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}

	j.Status = chat.JobRunning
	j.Attempts++
	if err := jobs.Update(ctx, j); err != nil {
		return err
	}

	var t *chat.Transcript
	if j.ChatID != "" {
		t, err = chats.Load(ctx, j.ChatID)
		if err != nil {
			j.Status = chat.JobFailed
			j.Error = "chat not found: " + err.Error()
			_ = jobs.Update(ctx, j)
			return err
		}
	} else {
		t = chat.NewTranscript()
	}

	t.Append(ai.RoleUser, j.Prompt)

	reply, err := provider.Complete(ctx, t.ProviderMessages())
	if err != nil {
		j.Status = chat.JobFailed
		j.Error = err.Error()
		_ = jobs.Update(ctx, j)
		return err
	}

	t.Append(ai.RoleAssistant, reply)
	if err := chats.Save(ctx, t); err != nil {
		j.Status = chat.JobFailed
		j.Error = "persist failed: " + err.Error()
		_ = jobs.Update(ctx, j)
		return err
	}

	j.ChatID = t.ID
	j.Status = chat.JobSucceeded
	j.ResultText = reply
	j.Error = ""
	return jobs.Update(ctx, j)
}
