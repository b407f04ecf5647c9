package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/haileyok/didlog/method"
	"github.com/haileyok/didlog/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLStore keeps one models.DidLog row per log and one models.LogLine row
// per entry.
type SQLStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

type SQLStoreArgs struct {
	DbName string
	// DB, when set, is used instead of opening DbName.
	DB     *gorm.DB
	Logger *slog.Logger
}

func NewSQLStore(args *SQLStoreArgs) (*SQLStore, error) {
	if args.Logger == nil {
		args.Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))
	}

	db := args.DB
	if db == nil {
		if args.DbName == "" {
			return nil, fmt.Errorf("db name must be set")
		}

		var err error
		db, err = gorm.Open(sqlite.Open(args.DbName), &gorm.Config{})
		if err != nil {
			return nil, err
		}
	}

	if err := db.AutoMigrate(&models.DidLog{}, &models.LogLine{}); err != nil {
		return nil, err
	}

	return &SQLStore{
		db:     db,
		logger: args.Logger,
	}, nil
}

func (s *SQLStore) Load(ctx context.Context, path string) (string, error) {
	p, err := CleanPath(path)
	if err != nil {
		return "", err
	}

	var lines []models.LogLine
	if err := s.db.WithContext(ctx).Where("path = ?", p).Order("seq asc").Find(&lines).Error; err != nil {
		return "", err
	}

	if len(lines) == 0 {
		return "", ErrNotFound
	}

	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(l.Line)
		sb.WriteByte('\n')
	}

	return sb.String(), nil
}

func (s *SQLStore) Create(ctx context.Context, path, did, line string) error {
	p, err := CleanPath(path)
	if err != nil {
		return err
	}

	line = singleLine(line)
	vid := versionIDOf(line)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.DidLog{
			Path:          p,
			Did:           did,
			LastVersionID: vid,
			Entries:       1,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrExists
		}

		return tx.Create(&models.LogLine{
			Path:      p,
			Seq:       1,
			VersionID: vid,
			Line:      line,
		}).Error
	})
	if err != nil {
		return err
	}

	s.logger.Info("stored new log", "did", did, "path", p, "versionId", vid)

	return nil
}

func (s *SQLStore) Append(ctx context.Context, path, line string) error {
	p, err := CleanPath(path)
	if err != nil {
		return err
	}

	line = singleLine(line)
	vid := versionIDOf(line)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var dl models.DidLog
		if err := tx.Where("path = ?", p).First(&dl).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		seq := dl.Entries + 1
		if err := tx.Create(&models.LogLine{
			Path:      p,
			Seq:       seq,
			VersionID: vid,
			Line:      line,
		}).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.DidLog{}).Where("path = ?", p).Updates(map[string]any{
			"entries":         seq,
			"last_version_id": vid,
		}).Error; err != nil {
			return err
		}

		s.logger.Info("appended log entry", "did", dl.Did, "path", p, "versionId", vid)

		return nil
	})
}

func (s *SQLStore) List(ctx context.Context) ([]models.DidLog, error) {
	var logs []models.DidLog
	if err := s.db.WithContext(ctx).Order("did asc").Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// LookupDID returns the store path a DID's log is kept under.
func (s *SQLStore) LookupDID(ctx context.Context, did string) (string, error) {
	var dl models.DidLog
	if err := s.db.WithContext(ctx).Where("did = ?", did).First(&dl).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	return dl.Path, nil
}

// versionIDOf is informational only; a line that does not decode is still
// stored.
func versionIDOf(line string) string {
	e, _, err := method.DecodeLine([]byte(line))
	if err != nil {
		return ""
	}
	return e.VersionID
}

var _ Store = (*SQLStore)(nil)
