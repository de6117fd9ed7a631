package main

import (
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/qs3c/engage_go_server/config"
	"github.com/qs3c/engage_go_server/internal/database"
	"github.com/qs3c/engage_go_server/internal/repository"
)

var (
	dryRun          = flag.Bool("dry-run", true, "Dry run mode, only count expired records")
	keepDays        = flag.Int("keep-days", 0, "Days to keep generation records (0 uses pipeline.retention_days)")
	cleanComments   = flag.Bool("clean-comments", true, "Clean expired comment suggestions")
	cleanGeneration = flag.Bool("clean-generations", true, "Clean expired generation records")
)

// expirable 按创建时间统计和删除的记录
type expirable interface {
	CountOlderThan(before time.Time) (int64, error)
	DeleteOlderThan(before time.Time) (int64, error)
}

func main() {
	flag.Parse()

	log.Println("🧹 Starting cleanup task...")
	log.Printf("Mode: dry-run=%v", *dryRun)

	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 连接数据库
	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	days := *keepDays
	if days <= 0 {
		days = cfg.Pipeline.RetentionDays
	}
	cutoff := time.Now().AddDate(0, 0, -days)
	log.Printf("Cutoff: %s (keep %d days)", cutoff.Format(time.RFC3339), days)

	var total int64

	// 1. 先清理评论，再清理生成记录
	if *cleanComments {
		log.Println("\n💬 Cleaning expired comment suggestions...")
		total += clean("comments", repository.NewCommentRepository(db), cutoff, *dryRun)
	}

	// 2. 清理生成记录
	if *cleanGeneration {
		log.Println("\n🤖 Cleaning expired generation records...")
		total += clean("generations", repository.NewGenerationRepository(db), cutoff, *dryRun)
	}

	// 输出统计
	log.Println("\n" + strings.Repeat("=", 60))
	log.Println("📊 Cleanup Summary")
	log.Println(strings.Repeat("=", 60))
	log.Printf("Expired records: %d", total)
	if *dryRun {
		log.Println("\n⚠️  DRY RUN MODE - No records were actually deleted")
		log.Println("   Run with -dry-run=false to actually delete records")
	} else {
		log.Println("\n✅ Cleanup completed!")
	}
	log.Println(strings.Repeat("=", 60))
}

// clean 统计或删除 cutoff 之前的记录，返回受影响的条数
func clean(name string, repo expirable, cutoff time.Time, dryRun bool) int64 {
	if dryRun {
		n, err := repo.CountOlderThan(cutoff)
		if err != nil {
			log.Printf("  ❌ Failed to count %s: %v", name, err)
			return 0
		}
		log.Printf("  - %s: %d expired", name, n)
		return n
	}

	n, err := repo.DeleteOlderThan(cutoff)
	if err != nil {
		log.Printf("  ❌ Failed to delete %s: %v", name, err)
		return 0
	}
	log.Printf("  - %s: %d deleted", name, n)
	return n
}
