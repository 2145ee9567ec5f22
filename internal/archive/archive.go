// Package archive optionally persists run summaries to Postgres so ASN
// activity can be compared across runs without re-parsing old logs.
package archive

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"asnlog/internal/domain"
)

type Run struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	Source        string `gorm:"size:512;not null"`
	Pattern       string `gorm:"size:512;not null"`
	StartedAt     time.Time
	FinishedAt    time.Time
	TotalLines    uint64
	MatchedLines  uint64
	UniqueIPs     int
	UnresolvedIPs int

	Entries []RunEntry `gorm:"foreignKey:RunID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
}

type RunEntry struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	RunID         uint64 `gorm:"index"`
	ASN           uint32 `gorm:"index"`
	Description   string `gorm:"size:256"`
	UniqueIPCount int
	TotalEntries  uint64
	SampleIPs     StringList `gorm:"type:jsonb"`
}

// RunSummary carries the scan bookkeeping BuildRun folds into the record.
type RunSummary struct {
	Source       string
	Pattern      string
	StartedAt    time.Time
	FinishedAt   time.Time
	TotalLines   uint64
	MatchedLines uint64
	UniqueIPs    int
	Unresolved   int
}

// BuildRun maps an aggregate snapshot onto the archive schema.
func BuildRun(summary RunSummary, entries []domain.AggregateEntry) Run {
	run := Run{
		Source:        summary.Source,
		Pattern:       summary.Pattern,
		StartedAt:     summary.StartedAt,
		FinishedAt:    summary.FinishedAt,
		TotalLines:    summary.TotalLines,
		MatchedLines:  summary.MatchedLines,
		UniqueIPs:     summary.UniqueIPs,
		UnresolvedIPs: summary.Unresolved,
		Entries:       make([]RunEntry, 0, len(entries)),
	}
	for _, entry := range entries {
		run.Entries = append(run.Entries, RunEntry{
			ASN:           entry.ASN,
			Description:   entry.Description,
			UniqueIPCount: entry.UniqueIPCount,
			TotalEntries:  entry.TotalEntries,
			SampleIPs:     StringList(entry.SampleIPs),
		})
	}
	return run
}

// Save opens the database, migrates the archive tables and persists the run
// with its entries in one transaction.
func Save(ctx context.Context, dsn string, run Run) error {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("archive: open database: %w", err)
	}
	defer func() {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
	}()

	if err := db.WithContext(ctx).AutoMigrate(&Run{}, &RunEntry{}); err != nil {
		return fmt.Errorf("archive: migrate schema: %w", err)
	}
	if err := db.WithContext(ctx).Create(&run).Error; err != nil {
		return fmt.Errorf("archive: store run: %w", err)
	}
	return nil
}
