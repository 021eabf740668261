// Command main runs the database seeder for Kindred.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"kindred/internal/config"
	"kindred/internal/database"
	"kindred/internal/middleware"
	"kindred/internal/seed"
)

func main() {
	numUsers := flag.Int("users", 60, "Number of profiles to create")
	swipesPerUser := flag.Int("swipes", 20, "Swipes each profile makes")
	likePercent := flag.Int("likes", 60, "Percentage of swipes that are likes")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	randomSeed := flag.Int64("seed", time.Now().UnixNano(), "Random seed for a repeatable data set")
	tokens := flag.Int("tokens", 5, "Print dev access tokens for the first N profiles")
	flag.Parse()

	log.Println("🌱 Database Seeder")
	log.Println("==================")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IsProduction() {
		log.Fatal("Refusing to seed a production database")
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	res, err := seed.Seed(context.Background(), db, seed.Options{
		Users:         *numUsers,
		SwipesPerUser: *swipesPerUser,
		LikePercent:   *likePercent,
		ShouldClean:   *shouldClean,
		RandomSeed:    *randomSeed,
	})
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	middleware.InitMiddleware(cfg)
	for i := 0; i < *tokens && i < len(res.Users); i++ {
		u := res.Users[i]
		token, err := middleware.IssueToken(u.ID, 7*24*time.Hour)
		if err != nil {
			log.Fatalf("❌ Token issuance failed: %v", err)
		}
		log.Printf("🔑 user %d (%s): %s", u.ID, u.DisplayName, token)
	}

	log.Printf("✨ All done! seed=%d", *randomSeed)
}
