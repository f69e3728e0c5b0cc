// Package notifyqueue implements the best-effort notification retry and
// dead-letter queue described in SPEC_FULL.md §4.5, grounded on the
// teacher's collect/queue/redis.go RequeueMessage/ProcessDelayedMessages
// pattern. It never sits in front of the Worker's own synchronous,
// at-most-once-per-tick notify call (§4.2 step 7) — only control-plane
// triggered mail is routed through it.
package notifyqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/codesprinters/twillmanager/internal/config"
	"github.com/codesprinters/twillmanager/internal/logger"
	"github.com/codesprinters/twillmanager/internal/models"
)

var client *redis.Client

// Init connects to Redis and verifies connectivity.
func Init() error {
	opt, err := redis.ParseURL(config.Config.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opt.DB = config.Config.RedisDB
	opt.Password = config.Config.RedisPassword
	opt.MaxRetries = config.Config.RedisMaxRetries
	opt.DialTimeout = config.Config.RedisDialTimeout
	opt.ReadTimeout = config.Config.RedisReadTimeout
	opt.WriteTimeout = config.Config.RedisWriteTimeout

	client = redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info().
		Str("redis_url", logger.SanitizeConnectionURL(config.Config.RedisURL)).
		Msg("notification queue connected")
	return nil
}

// Close releases the Redis connection.
func Close() error {
	if client != nil {
		return client.Close()
	}
	return nil
}

// Queue manages the primary, delayed and dead-letter lists for notification jobs.
type Queue struct {
	client    *redis.Client
	queueName string
}

// NewQueue builds a Queue bound to the configured notification list name.
func NewQueue() *Queue {
	return &Queue{client: client, queueName: config.Config.NotificationQueueName}
}

// Enqueue pushes a notification job onto the main list.
func (q *Queue) Enqueue(ctx context.Context, job *models.NotificationJob) error {
	applyJobDefaults(job, config.Config.NotificationRetryAttempts)
	return q.push(ctx, q.queueName, job)
}

// applyJobDefaults fills in an id and a retry ceiling for a job that
// arrived without either, split out of Enqueue so it can be unit tested
// without a live Redis connection.
func applyJobDefaults(job *models.NotificationJob, defaultMaxAttempts int) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.MaxAttempts == 0 {
		job.MaxAttempts = defaultMaxAttempts
	}
}

func (q *Queue) push(ctx context.Context, list string, job *models.NotificationJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal notification job: %w", err)
	}
	if err := q.client.LPush(ctx, list, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue notification job: %w", err)
	}
	return nil
}

// Dequeue blocks up to timeout waiting for a job on the main list.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*models.NotificationJob, error) {
	result, err := q.client.BRPop(ctx, timeout, q.queueName).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue notification job: %w", err)
	}
	var job models.NotificationJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal notification job: %w", err)
	}
	return &job, nil
}

// Requeue increments the attempt count and either schedules a delayed
// retry with exponential backoff or moves the job to the dead-letter list.
func (q *Queue) Requeue(ctx context.Context, job *models.NotificationJob, sendErr error) error {
	job.Attempts++
	errStr := sendErr.Error()
	job.LastError = &errStr

	if job.Attempts >= job.MaxAttempts {
		return q.push(ctx, q.queueName+":dead", job)
	}

	delay := backoffDelay(job.Attempts, config.Config.NotificationRetryDelay)

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal notification job for retry: %w", err)
	}

	score := float64(time.Now().Add(delay).Unix())
	if err := q.client.ZAdd(ctx, q.queueName+":delayed", redis.Z{Score: score, Member: data}).Err(); err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}

	logger.Warn().
		Str("job_id", job.ID).
		Int("attempts", job.Attempts).
		Int("max_attempts", job.MaxAttempts).
		Dur("delay", delay).
		Err(sendErr).
		Msg("notification requeued with delay")

	return nil
}

const maxRetryDelay = 5 * time.Minute

// backoffDelay computes the exponential, capped backoff used between
// retries: base after the first attempt, doubling with each further one.
func backoffDelay(attempts int, base time.Duration) time.Duration {
	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay > maxRetryDelay {
			return maxRetryDelay
		}
	}
	if delay > maxRetryDelay {
		return maxRetryDelay
	}
	return delay
}

// ProcessDelayed moves ready delayed jobs back onto the main list.
func (q *Queue) ProcessDelayed(ctx context.Context) error {
	delayedList := q.queueName + ":delayed"
	now := float64(time.Now().Unix())

	result, err := q.client.ZRangeByScoreWithScores(ctx, delayedList, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%f", now),
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to get delayed notification jobs: %w", err)
	}

	for _, item := range result {
		data := item.Member.(string)
		pipe := q.client.TxPipeline()
		pipe.ZRem(ctx, delayedList, data)
		pipe.LPush(ctx, q.queueName, data)
		if _, err := pipe.Exec(ctx); err != nil {
			logger.Error().Err(err).Msg("failed to promote delayed notification job")
		}
	}
	return nil
}

// Stats reports pending/delayed/dead counts.
func (q *Queue) Stats(ctx context.Context) (map[string]int64, error) {
	pending, err := q.client.LLen(ctx, q.queueName).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get pending count: %w", err)
	}
	delayed, err := q.client.ZCard(ctx, q.queueName+":delayed").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get delayed count: %w", err)
	}
	dead, err := q.client.LLen(ctx, q.queueName+":dead").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get dead-letter count: %w", err)
	}
	return map[string]int64{"pending": pending, "delayed": delayed, "dead": dead}, nil
}

// Run starts the blocking consumer loop: dequeue, send via mailer, requeue
// on failure. Intended to run in its own goroutine for the lifetime of the
// supervisor process.
func (q *Queue) Run(ctx context.Context, send func(sender string, recipients []string, subject, body string) error) {
	sweepTicker := time.NewTicker(30 * time.Second)
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweepTicker.C:
			if err := q.ProcessDelayed(ctx); err != nil {
				logger.Error().Err(err).Msg("failed to process delayed notification jobs")
			}
		default:
			job, err := q.Dequeue(ctx, 5*time.Second)
			if err != nil {
				logger.Error().Err(err).Msg("failed to dequeue notification job")
				continue
			}
			if job == nil {
				continue
			}
			if err := send(job.Sender, job.Recipients, job.Subject, job.Body); err != nil {
				if reqErr := q.Requeue(ctx, job, err); reqErr != nil {
					logger.Error().Err(reqErr).Str("job_id", job.ID).Msg("failed to requeue notification job")
				}
			}
		}
	}
}
