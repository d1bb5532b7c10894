package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jghoshh/cadence/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStorage is a struct representing a MongoDB storage.
// It provides an interface to perform CRUD operations on the collections
// backing the scheduling engines.
type MongoStorage struct {
	client *mongo.Client
	dbName string
}

// NewMongoStorage creates a new instance of MongoStorage.
// This function doesn't establish a connection to the MongoDB server.
// To connect to the server, use the Connect method of the returned MongoStorage instance.
func NewMongoStorage() *MongoStorage {
	return &MongoStorage{}
}

// Connect establishes a connection to the MongoDB server at the given URI and
// database name. Sets up indexes and unique constraints as necessary; the
// unique index on scheduled reminders is what makes reminder generation's
// insert-if-absent atomic. Returns an error if any issues are encountered.
func (m *MongoStorage) Connect(dbName, uri string) error {

	// Set a timeout for the connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("error connecting to MongoDB: %v", err)
	}

	m.client = client
	m.dbName = dbName

	db := m.client.Database(m.dbName)

	// Users: unique email and username, same constraints the account system relies on.
	usersCollection := db.Collection("users")
	for _, field := range []string{"email", "username"} {
		indexModel := mongo.IndexModel{
			Keys:    bson.M{field: 1}, // 1 for ascending order
			Options: options.Index().SetUnique(true),
		}
		if _, err := usersCollection.Indexes().CreateOne(ctx, indexModel); err != nil {
			return fmt.Errorf("error creating %s index: %v", field, err)
		}
	}

	// Habits: speed up the per-user and active-habit scans.
	habitsCollection := db.Collection("habits")
	userIDIndexModel := mongo.IndexModel{
		Keys:    bson.M{"user_id": 1},
		Options: options.Index(),
	}
	if _, err := habitsCollection.Indexes().CreateOne(ctx, userIDIndexModel); err != nil {
		return fmt.Errorf("error creating user_id index on habits: %v", err)
	}

	// Habit logs: completion lookups are always bounded by habit or user plus a time window.
	logsCollection := db.Collection("habitLogs")
	logIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "habit_id", Value: 1}, {Key: "logged_at", Value: 1}}},
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "logged_at", Value: 1}}},
	}
	if _, err := logsCollection.Indexes().CreateMany(ctx, logIndexes); err != nil {
		return fmt.Errorf("error creating habitLogs indexes: %v", err)
	}

	// Daily status: exactly one row per (habit, user, day).
	statusCollection := db.Collection("habitDailyStatus")
	statusIndexModel := mongo.IndexModel{
		Keys: bson.D{
			{Key: "habit_id", Value: 1},
			{Key: "user_id", Value: 1},
			{Key: "date", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	}
	if _, err := statusCollection.Indexes().CreateOne(ctx, statusIndexModel); err != nil {
		return fmt.Errorf("error creating habitDailyStatus index: %v", err)
	}

	// Streaks: one row per (habit, user).
	streaksCollection := db.Collection("habitStreaks")
	streakIndexModel := mongo.IndexModel{
		Keys: bson.D{
			{Key: "habit_id", Value: 1},
			{Key: "user_id", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	}
	if _, err := streaksCollection.Indexes().CreateOne(ctx, streakIndexModel); err != nil {
		return fmt.Errorf("error creating habitStreaks index: %v", err)
	}

	// Reminder configurations: looked up per habit.
	remindersCollection := db.Collection("habitReminders")
	habitIDIndexModel := mongo.IndexModel{
		Keys:    bson.M{"habit_id": 1},
		Options: options.Index(),
	}
	if _, err := remindersCollection.Indexes().CreateOne(ctx, habitIDIndexModel); err != nil {
		return fmt.Errorf("error creating habit_id index on habitReminders: %v", err)
	}

	// Scheduled reminders: the unique dedup tuple plus the due-work scan index.
	scheduledCollection := db.Collection("scheduledReminders")
	scheduledIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "habit_id", Value: 1},
				{Key: "user_id", Value: 1},
				{Key: "scheduled_time", Value: 1},
				{Key: "reminder_config_id", Value: 1},
				{Key: "reminder_type", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "is_sent", Value: 1},
				{Key: "scheduled_time", Value: 1},
			},
		},
	}
	if _, err := scheduledCollection.Indexes().CreateMany(ctx, scheduledIndexes); err != nil {
		return fmt.Errorf("error creating scheduledReminders indexes: %v", err)
	}

	return nil
}

// Disconnect closes the connection to the MongoDB server.
// It should be called when the MongoStorage instance is no longer needed.
// Returns an error if the disconnection process fails.
func (m *MongoStorage) Disconnect() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := m.client.Disconnect(ctx)
	if err != nil {
		return fmt.Errorf("error disconnecting from MongoDB: %v", err)
	}

	return nil
}

func (m *MongoStorage) collection(name string) *mongo.Collection {
	return m.client.Database(m.dbName).Collection(name)
}

// FindUser finds a user document by id in the 'users' collection.
func (m *MongoStorage) FindUser(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	user := &models.User{}
	err := m.collection("users").FindOne(ctx, bson.M{"_id": id}).Decode(user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

// FindUsers returns every user document. The daily-goal pass is a full scan
// by design; the user population is the unit of work for that batch.
func (m *MongoStorage) FindUsers(ctx context.Context) ([]models.User, error) {
	cursor, err := m.collection("users").Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// UpdateUserStreak updates a user's daily-goal streak counters.
func (m *MongoStorage) UpdateUserStreak(ctx context.Context, id primitive.ObjectID, current, longest int) error {
	result, err := m.collection("users").UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"current_daily_streak": current, "longest_daily_streak": longest}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return errors.New("no user found to update")
	}
	return nil
}

// AddUserPoints increments a user's points total.
func (m *MongoStorage) AddUserPoints(ctx context.Context, id primitive.ObjectID, points int) error {
	result, err := m.collection("users").UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"points": points}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return errors.New("no user found to update")
	}
	return nil
}

// FindHabit finds a habit document by id in the 'habits' collection.
func (m *MongoStorage) FindHabit(ctx context.Context, id primitive.ObjectID) (*models.Habit, error) {
	habit := &models.Habit{}
	err := m.collection("habits").FindOne(ctx, bson.M{"_id": id}).Decode(habit)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return habit, nil
}

// FindActiveHabits returns every habit with is_active set.
func (m *MongoStorage) FindActiveHabits(ctx context.Context) ([]models.Habit, error) {
	cursor, err := m.collection("habits").Find(ctx, bson.M{"is_active": true})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var habits []models.Habit
	if err := cursor.All(ctx, &habits); err != nil {
		return nil, err
	}
	return habits, nil
}

// HasCompletedLog reports whether a completed habit log exists for the habit
// in the half-open window [start, end).
func (m *MongoStorage) HasCompletedLog(ctx context.Context, habitID primitive.ObjectID, start, end time.Time) (bool, error) {
	count, err := m.collection("habitLogs").CountDocuments(ctx, bson.M{
		"habit_id":  habitID,
		"completed": true,
		"logged_at": bson.M{"$gte": start, "$lt": end},
	}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindCompletedLogs returns a user's completed habit logs in [start, end).
func (m *MongoStorage) FindCompletedLogs(ctx context.Context, userID primitive.ObjectID, start, end time.Time) ([]models.HabitLog, error) {
	cursor, err := m.collection("habitLogs").Find(ctx, bson.M{
		"user_id":   userID,
		"completed": true,
		"logged_at": bson.M{"$gte": start, "$lt": end},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var logs []models.HabitLog
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// FindDailyStatus finds the status row for (habit, user, day).
func (m *MongoStorage) FindDailyStatus(ctx context.Context, habitID, userID primitive.ObjectID, day time.Time) (*models.HabitDailyStatus, error) {
	status := &models.HabitDailyStatus{}
	err := m.collection("habitDailyStatus").FindOne(ctx, bson.M{
		"habit_id": habitID,
		"user_id":  userID,
		"date":     day,
	}).Decode(status)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return status, nil
}

// AddDailyStatus adds a new daily status row.
func (m *MongoStorage) AddDailyStatus(ctx context.Context, status *models.HabitDailyStatus) (*models.HabitDailyStatus, error) {
	result, err := m.collection("habitDailyStatus").InsertOne(ctx, status)
	if err != nil {
		return nil, err
	}
	status.ID = result.InsertedID.(primitive.ObjectID)
	return status, nil
}

// FindCompletedStatuses returns a user's completed daily status rows for one day.
func (m *MongoStorage) FindCompletedStatuses(ctx context.Context, userID primitive.ObjectID, day time.Time) ([]models.HabitDailyStatus, error) {
	cursor, err := m.collection("habitDailyStatus").Find(ctx, bson.M{
		"user_id":      userID,
		"date":         day,
		"is_completed": true,
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var statuses []models.HabitDailyStatus
	if err := cursor.All(ctx, &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}

// FindStreak finds the streak row for (habit, user).
func (m *MongoStorage) FindStreak(ctx context.Context, habitID, userID primitive.ObjectID) (*models.HabitStreak, error) {
	streak := &models.HabitStreak{}
	err := m.collection("habitStreaks").FindOne(ctx, bson.M{
		"habit_id": habitID,
		"user_id":  userID,
	}).Decode(streak)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return streak, nil
}

// AddStreak adds a new streak row.
func (m *MongoStorage) AddStreak(ctx context.Context, streak *models.HabitStreak) (*models.HabitStreak, error) {
	result, err := m.collection("habitStreaks").InsertOne(ctx, streak)
	if err != nil {
		return nil, err
	}
	streak.ID = result.InsertedID.(primitive.ObjectID)
	return streak, nil
}

// UpdateStreak replaces the streak row in place. Only the streak engine
// mutates streaks, so a whole-document replace cannot lose concurrent writes.
func (m *MongoStorage) UpdateStreak(ctx context.Context, streak *models.HabitStreak) error {
	result, err := m.collection("habitStreaks").ReplaceOne(ctx, bson.M{"_id": streak.ID}, streak)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return errors.New("no streak found to update")
	}
	return nil
}

// AddReset adds an immutable streak reset audit row.
func (m *MongoStorage) AddReset(ctx context.Context, reset *models.HabitReset) (*models.HabitReset, error) {
	result, err := m.collection("habitResets").InsertOne(ctx, reset)
	if err != nil {
		return nil, err
	}
	reset.ID = result.InsertedID.(primitive.ObjectID)
	return reset, nil
}

// FindEnabledReminders returns the enabled reminder configurations of a habit.
func (m *MongoStorage) FindEnabledReminders(ctx context.Context, habitID primitive.ObjectID) ([]models.HabitReminder, error) {
	cursor, err := m.collection("habitReminders").Find(ctx, bson.M{
		"habit_id": habitID,
		"enabled":  true,
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var reminders []models.HabitReminder
	if err := cursor.All(ctx, &reminders); err != nil {
		return nil, err
	}
	return reminders, nil
}

// AddScheduledReminderIfAbsent inserts a scheduled reminder unless one already
// exists for the same dedup tuple. The unique index on (habit_id, user_id,
// scheduled_time, reminder_config_id, reminder_type) makes the operation
// atomic; a duplicate key write is reported as "already present", not an error.
func (m *MongoStorage) AddScheduledReminderIfAbsent(ctx context.Context, reminder *models.ScheduledReminder) (bool, error) {
	result, err := m.collection("scheduledReminders").InsertOne(ctx, reminder)
	if err != nil {
		if writeException, ok := err.(mongo.WriteException); ok {
			for _, writeError := range writeException.WriteErrors {
				if writeError.Code == 11000 {
					return false, nil
				}
			}
		}
		return false, err
	}
	reminder.ID = result.InsertedID.(primitive.ObjectID)
	return true, nil
}

// FindDueScheduledReminders returns unsent scheduled reminders whose
// scheduled_time is at or before now.
func (m *MongoStorage) FindDueScheduledReminders(ctx context.Context, now time.Time) ([]models.ScheduledReminder, error) {
	cursor, err := m.collection("scheduledReminders").Find(ctx, bson.M{
		"is_sent":        false,
		"scheduled_time": bson.M{"$lte": now},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var reminders []models.ScheduledReminder
	if err := cursor.All(ctx, &reminders); err != nil {
		return nil, err
	}
	return reminders, nil
}

// CloseScheduledReminder flips a scheduled reminder to a terminal status.
// The is_sent=false filter guarantees at-most-once processing: a second
// dispatcher run matches nothing and is told so via the returned bool.
func (m *MongoStorage) CloseScheduledReminder(ctx context.Context, id primitive.ObjectID, status models.SendStatus, errText string) (bool, error) {
	update := bson.M{"is_sent": true, "send_status": status}
	if errText != "" {
		update["error"] = errText
	}
	result, err := m.collection("scheduledReminders").UpdateOne(ctx,
		bson.M{"_id": id, "is_sent": false},
		bson.M{"$set": update},
	)
	if err != nil {
		return false, err
	}
	return result.ModifiedCount == 1, nil
}

// DeleteUnsentReminders removes unsent instances materialized from one
// reminder configuration. Sent instances are history and stay.
func (m *MongoStorage) DeleteUnsentReminders(ctx context.Context, configID primitive.ObjectID) (*DeleteResult, error) {
	result, err := m.collection("scheduledReminders").DeleteMany(ctx, bson.M{
		"reminder_config_id": configID,
		"is_sent":            false,
	})
	if err != nil {
		return nil, err
	}
	return &DeleteResult{DeletedCount: result.DeletedCount}, nil
}

// AddNotification adds an in-app notification row.
func (m *MongoStorage) AddNotification(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	result, err := m.collection("notifications").InsertOne(ctx, n)
	if err != nil {
		return nil, err
	}
	n.ID = result.InsertedID.(primitive.ObjectID)
	return n, nil
}

// AddPointsLog adds a points award row.
func (m *MongoStorage) AddPointsLog(ctx context.Context, p *models.PointsLog) (*models.PointsLog, error) {
	result, err := m.collection("pointsLogs").InsertOne(ctx, p)
	if err != nil {
		return nil, err
	}
	p.ID = result.InsertedID.(primitive.ObjectID)
	return p, nil
}
