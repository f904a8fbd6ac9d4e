// Seed inserts demo patient messages into an empty intake database.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/intake/internal/postgres"
	"github.com/linnemanlabs/intake/internal/triage"
	"github.com/linnemanlabs/intake/internal/triage/pgstore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

func run() error {
	var databaseURL string
	flag.StringVar(&databaseURL, "database-url", os.Getenv("INTAKE_DATABASE_URL"), "PostgreSQL connection URL")
	flag.Parse()

	if databaseURL == "" {
		return fmt.Errorf("-database-url (or INTAKE_DATABASE_URL) is required")
	}

	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("postgres pool: %w", err)
	}
	defer pool.Close()

	store, err := pgstore.New(ctx, pool)
	if err != nil {
		return fmt.Errorf("pgstore init: %w", err)
	}

	n, err := store.CountMessages(ctx)
	if err != nil {
		return fmt.Errorf("count messages: %w", err)
	}
	if n > 0 {
		fmt.Println("messages already exist, skipping seed")
		return nil
	}

	demo := []struct {
		subject string
		body    string
		channel string
	}{
		{
			subject: "Refill request for blood pressure medication",
			body:    "Hi, I am running low on my lisinopril prescription. Can I get a refill before my next appointment?",
			channel: "portal",
		},
		{
			subject: "Billing question about last visit",
			body:    "I was charged twice for my last consultation. Can someone explain the bill?",
			channel: "email",
		},
		{
			subject: "New chest pain and shortness of breath",
			body:    "Today I started experiencing chest pain when climbing stairs and some shortness of breath.",
			channel: "phone",
		},
	}

	for _, d := range demo {
		msg := &triage.Message{
			ID:         ulid.Make().String(),
			Subject:    d.subject,
			Body:       d.body,
			Channel:    d.channel,
			ReceivedAt: time.Now().UTC(),
			Status:     triage.MessageNew,
		}
		if err := store.CreateMessage(ctx, msg); err != nil {
			return fmt.Errorf("seed message %q: %w", d.subject, err)
		}
	}

	fmt.Printf("seeded %d demo messages\n", len(demo))
	return nil
}
