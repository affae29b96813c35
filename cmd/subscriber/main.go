// Command subscriber is a console consumer for detection result topics.
//
// Usage:
//
//	subscriber subscribe <topic>          stream live messages until interrupted
//	subscriber history <topic> [limit]    dump recent messages from the history list
//
// Configuration comes from the environment (QUEUE_TYPE, REDIS_URL,
// MQTT_BROKER_URL, ...); history requires the Redis backend.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/illmade-knight/go-audio-detect/pkg/config"
	"github.com/illmade-knight/go-audio-detect/pkg/queue"
)

const defaultHistoryLimit = 10

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	if len(os.Args) < 3 {
		printUsage()
		os.Exit(1)
	}
	command := strings.ToLower(os.Args[1])
	topic := os.Args[2]

	settings := config.LoadFromEnv()

	switch command {
	case "subscribe":
		runSubscribe(logger, settings, topic)
	case "history":
		limit := int64(defaultHistoryLimit)
		if len(os.Args) > 3 {
			n, err := strconv.ParseInt(os.Args[3], 10, 64)
			if err != nil || n <= 0 {
				fmt.Fprintf(os.Stderr, "invalid limit %q\n", os.Args[3])
				os.Exit(1)
			}
			limit = n
		}
		runHistory(logger, settings, topic, limit)
	default:
		printUsage()
		os.Exit(1)
	}
}

func runSubscribe(logger zerolog.Logger, settings config.Settings, topic string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	subscriber := queue.NewSubscriber(&settings.Queue, logger)
	if !subscriber.Subscribe(topic, printMessage) {
		logger.Error().Str("topic", topic).Msg("Subscription failed")
		subscriber.Close()
		os.Exit(1)
	}

	fmt.Printf("Subscribed to topic: %s\n", topic)
	fmt.Println("Waiting for messages... (Ctrl+C to quit)")
	subscriber.Run(ctx)
}

func runHistory(logger zerolog.Logger, settings config.Settings, topic string, limit int64) {
	manager := queue.NewManager(&settings.Queue, logger)
	defer manager.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	messages, ok := manager.History(ctx, topic, limit)
	if !ok {
		logger.Error().Str("topic", topic).Msg("History is unavailable; it requires the Redis backend")
		os.Exit(1)
	}
	if len(messages) == 0 {
		fmt.Printf("No history found for topic: %s\n", topic)
		return
	}

	fmt.Printf("Recent messages for topic '%s':\n", topic)
	for i, message := range messages {
		fmt.Printf("\n--- Message %d ---\n", i+1)
		printSummary(message)
	}
}

// printMessage renders a live delivery, summarizing detection results when
// the payload looks like one.
func printMessage(topic string, message map[string]any) {
	fmt.Println("\n==== New Message ====")
	fmt.Printf("Topic: %s\n", topic)
	printSummary(message)
	fmt.Println("=====================")
}

func printSummary(message map[string]any) {
	if jobID, ok := message["job_id"].(string); ok {
		fmt.Printf("Job ID: %s\n", jobID)
	}
	if ts, ok := message["timestamp"].(string); ok {
		fmt.Printf("Timestamp: %s\n", ts)
	}

	if errMsg, ok := message["error"].(string); ok && errMsg != "" {
		fmt.Printf("Error: %s\n", errMsg)
		return
	}

	if text, ok := message["text"].(string); ok && text != "" {
		fmt.Println("\nTranscription Result:")
		if lang, ok := message["language"].(string); ok {
			fmt.Printf("Language: %s\n", lang)
		}
		fmt.Printf("Text: %s\n", text)
		return
	}

	keywords, ok := message["detected_keywords"].(map[string]any)
	if !ok {
		return
	}
	fmt.Println("\nDetected Keywords:")
	for keyword, raw := range keywords {
		hit, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if detected, _ := hit["detected"].(bool); detected {
			occurrences, _ := hit["occurrences"].(float64)
			fmt.Printf("  + %q - %d occurrences\n", keyword, int(occurrences))
		} else {
			fmt.Printf("  - %q - not found\n", keyword)
		}
	}
	if transcription, ok := message["transcription"].(string); ok && transcription != "" {
		fmt.Printf("\nTranscription: %s\n", transcription)
	}
}

func printUsage() {
	fmt.Println("Queue Subscriber Client")
	fmt.Println("=======================")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  subscriber subscribe <topic>        Subscribe to real-time messages on a topic")
	fmt.Println("  subscriber history <topic> [limit]  View recent messages from a topic (Redis backend only)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  subscriber subscribe transcriptions")
	fmt.Println("  subscriber history keyword_detections 20")
}
