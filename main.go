package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/coder/quartz"
	"github.com/jghoshh/cadence/engine"
	"github.com/jghoshh/cadence/notifications"
	"github.com/jghoshh/cadence/notifications/email"
	"github.com/jghoshh/cadence/queue"
	"github.com/jghoshh/cadence/scheduler"
	"github.com/jghoshh/cadence/server"
	storage "github.com/jghoshh/cadence/storage/persistent"
	"github.com/joho/godotenv"
)

func main() {
	// Load the .env file
	err := godotenv.Load()
	if err != nil {
		fmt.Println("Error loading .env file")
	}

	// Read the environment variables
	dbURI := os.Getenv("MONGODB_URI")
	dbName := os.Getenv("DB_NAME")
	redisURL := os.Getenv("REDIS_URL")
	rabbitMQURL := os.Getenv("RABBITMQ_URL")
	smtpEmail := os.Getenv("SMTP_EMAIL")
	smtpPassword := os.Getenv("SMTP_PASS")
	serverAddr := os.Getenv("SERVER_ADDR")
	if dbName == "" {
		dbName = "cadence"
	}
	if serverAddr == "" {
		serverAddr = ":8080"
	}
	numPushProducers := 1
	numPushConsumers := 2
	ctx, stopConsumers := context.WithCancel(context.Background())
	defer stopConsumers()

	store, err := storage.NewStorage(dbName, dbURI)
	if err != nil {
		log.Fatalf("error initializing storage: %v", err)
	}
	defer store.Disconnect()

	if _, err := email.InitEmailService(smtpEmail, smtpPassword); err != nil {
		log.Fatalf("error initializing email service: %v", err)
	}

	pushCache, err := queue.InitPushCache(redisURL)
	if err != nil {
		log.Fatalf("error initializing push cache: %v", err)
	}
	defer pushCache.Disconnect()

	pushQueue, err := queue.BuildPushQueue(rabbitMQURL, numPushProducers, numPushConsumers, pushCache, store, notifications.EmailDeliverer{})
	if err != nil {
		log.Fatalf("error initializing push queue: %v", err)
	}
	consumers := pushQueue.StartConsumers(ctx)

	// Wire the engines. Everything time-dependent shares the one clock.
	clock := quartz.NewReal()
	sender := queue.NewSender(pushQueue)
	outbox := notifications.NewOutbox(store, sender, clock)
	freq := engine.NewFrequencyEvaluator(store)
	streaks := engine.NewStreakEngine(store, freq, outbox, clock)
	generator := engine.NewReminderGenerator(store, freq, clock)
	dispatcher := engine.NewReminderDispatcher(store, sender, clock)

	sched := scheduler.New()
	mustRegister(sched, "streaks.daily", "30 0 * * *", func(ctx context.Context) error {
		_, err := streaks.RunDaily(ctx)
		return err
	})
	mustRegister(sched, "reminders.generate", "0 21 * * *", func(ctx context.Context) error {
		_, err := generator.GenerateNextDay(ctx)
		return err
	})
	mustRegister(sched, "reminders.dispatch", "*/15 * * * *", func(ctx context.Context) error {
		_, err := dispatcher.ProcessDue(ctx)
		return err
	})
	sched.Start()
	defer sched.Stop()

	go func() {
		if err := server.Start(serverAddr, sched); err != nil {
			log.Fatalf("ops server: %v", err)
		}
	}()

	// Setting up the signal interrupt handler to gracefully shut down
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	log.Printf("received %s, shutting down", sig)

	// Stop feeding the consumers and wait until they drain; the deferred
	// scheduler stop then waits out any in-flight job.
	stopConsumers()
	consumers.Wait()
}

func mustRegister(sched *scheduler.Scheduler, name, spec string, job scheduler.Job) {
	if err := sched.Register(name, spec, job); err != nil {
		log.Fatalf("error registering job %q: %v", name, err)
	}
}
