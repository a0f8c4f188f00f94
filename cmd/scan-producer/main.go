package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
)

// ScanSubmission represents a scan submission message
type ScanSubmission struct {
	PlayerID  string   `json:"player_id"`
	Username  string   `json:"username,omitempty"`
	Token     string   `json:"token"`
	Latitude  *float64 `json:"lat,omitempty"`
	Longitude *float64 `json:"lng,omitempty"`
}

// huntSite is a site the simulated players visit
type huntSite struct {
	name   string
	points int
	lat    float64
	lng    float64
}

// Kathmandu valley sites, matching the default play area
var huntSites = []huntSite{
	{"Patan Durbar Square", 20, 27.6727, 85.3249},
	{"Boudhanath Stupa", 30, 27.7215, 85.3620},
	{"Swayambhunath", 25, 27.7149, 85.2904},
	{"Pashupatinath Temple", 30, 27.7104, 85.3487},
	{"Garden of Dreams", 10, 27.7140, 85.3142},
	{"Kathmandu Durbar Square", 20, 27.7044, 85.3075},
	{"Thamel Gate", 10, 27.7154, 85.3123},
	{"Narayanhiti Palace", 15, 27.7146, 85.3186},
}

var playerPrefixes = []string{
	"Phoenix", "Shadow", "Thunder", "Storm", "Blaze", "Ninja", "Dragon", "Wolf", "Hawk", "Viper",
	"Ghost", "Titan", "Frost", "Cyber", "Nova", "Raven", "Omega", "Alpha", "Delta", "Sigma",
	"Ace", "Bolt", "Crash", "Dash", "Edge", "Flash", "Glitch", "Haze", "Ion", "Jade",
	"Knight", "Luna", "Mystic", "Neon", "Orion", "Pulse", "Quantum", "Rebel", "Spark", "Turbo",
}

func getPlayerName(idx int) string {
	prefixIdx := idx % len(playerPrefixes)
	suffix := idx/len(playerPrefixes) + 1
	return fmt.Sprintf("%s%d", playerPrefixes[prefixIdx], suffix)
}

// jitter returns a coordinate offset of up to ~100m so simulated players
// stand near a site rather than exactly on it
func jitter() float64 {
	return (rand.Float64() - 0.5) * 0.0018
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "hunt-scans", "Kafka topic")
	totalPlayers := flag.Int("players", 200, "Total number of simulated players")
	scansPerSecond := flag.Int("rate", 20, "Scan submissions per second")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	wanderChance := flag.Int("wander", 10, "Percent of scans sent from a random far-away location")
	flag.Parse()

	brokerList := strings.Split(*brokers, ",")

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  Scan Producer")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:          %s\n", *brokers)
	fmt.Printf("  Topic:            %s\n", *topic)
	fmt.Printf("  Total Players:    %d\n", *totalPlayers)
	fmt.Printf("  Scans/sec:        %d\n", *scansPerSecond)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	// Create producer
	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}
	defer producer.Close()

	// Handle producer errors and successes
	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	// Send message helper
	sendMessage := func(submission ScanSubmission) {
		data, err := json.Marshal(submission)
		if err != nil {
			log.Printf("Failed to marshal message: %v", err)
			return
		}

		msg := &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(submission.PlayerID),
			Value: sarama.ByteEncoder(data),
		}

		select {
		case producer.Input() <- msg:
		case <-done:
			return
		}
	}

	shutdown := func() {
		close(done)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\n✓ Completed. Sent: %d, Errors: %d\n",
			atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	fmt.Printf("Simulating %d players scanning %d sites\n", *totalPlayers, len(huntSites))
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	interval := time.Second / time.Duration(*scansPerSecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	var scanCount int64

	for {
		select {
		case <-sigChan:
			fmt.Println("\n\nShutting down...")
			shutdown()
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				fmt.Println("\n\nDuration reached, shutting down...")
				shutdown()
				return
			}

			playerIdx := rand.Intn(*totalPlayers)
			site := huntSites[rand.Intn(len(huntSites))]

			lat := site.lat + jitter()
			lng := site.lng + jitter()

			// Some scans come from far outside the play area so the
			// geofence rejection path gets exercised too.
			if rand.Intn(100) < *wanderChance {
				lat += 1.0 + rand.Float64()
				lng += 1.0 + rand.Float64()
			}

			name := getPlayerName(playerIdx)
			submission := ScanSubmission{
				PlayerID:  name,
				Username:  name,
				Token:     fmt.Sprintf("%s_%d", site.name, site.points),
				Latitude:  &lat,
				Longitude: &lng,
			}
			sendMessage(submission)
			atomic.AddInt64(&scanCount, 1)

		case <-statsTicker.C:
			scans := atomic.LoadInt64(&scanCount)
			success := atomic.LoadInt64(&successCount)
			errors := atomic.LoadInt64(&errorCount)
			fmt.Printf("[%s] Scans: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				scans,
				success,
				errors,
			)
		}
	}
}
