package repository

import (
	"bufio"
	"context"
	"errors"
	"log"
	"os"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mapleleafu/typerace/content"
)

type Paragraph struct {
	ID   uint   `gorm:"primaryKey"`
	Text string `gorm:"not null;unique"`
}

// ParagraphStore is a sqlite-backed content.Provider.
type ParagraphStore struct {
	db *gorm.DB
}

func OpenParagraphStore(path string) (*ParagraphStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Paragraph{}); err != nil {
		return nil, err
	}
	return &ParagraphStore{db: db}, nil
}

// Seed inserts the paragraphs that are not stored yet and returns how many were added.
func (s *ParagraphStore) Seed(paragraphs []string) (int, error) {
	added := 0
	for _, text := range paragraphs {
		text = content.Normalize(text)
		if !content.Valid(text) {
			log.Printf("Skipping paragraph of %d bytes", len(text))
			continue
		}
		res := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&Paragraph{Text: text})
		if res.Error != nil {
			return added, res.Error
		}
		added += int(res.RowsAffected)
	}
	return added, nil
}

func (s *ParagraphStore) Paragraph(ctx context.Context) (string, error) {
	var p Paragraph
	if err := s.db.WithContext(ctx).Order("RANDOM()").First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", content.ErrNoParagraph
		}
		return "", err
	}
	return p.Text, nil
}

func (s *ParagraphStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// LoadParagraphsFile reads one paragraph per non-empty line.
func LoadParagraphsFile(filename string) ([]string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var paragraphs []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			paragraphs = append(paragraphs, line)
		}
	}
	return paragraphs, scanner.Err()
}
