package blob

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type object struct {
	Key         string `gorm:"primaryKey;size:512"`
	Data        []byte `gorm:"not null"`
	ContentType string `gorm:"size:128"`
	UpdatedAt   time.Time
}

func (object) TableName() string { return "objects" }

// Gorm stores objects in a single sqlite table. It is the single-binary
// default: no external services, still queryable with standard tools.
type Gorm struct {
	db *gorm.DB
}

func OpenSQLite(path string) (*Gorm, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return NewGorm(db)
}

func NewGorm(db *gorm.DB) (*Gorm, error) {
	if err := db.AutoMigrate(&object{}); err != nil {
		return nil, err
	}
	return &Gorm{db: db}, nil
}

func (s *Gorm) List(ctx context.Context, prefix string) ([]Object, error) {
	var rows []object
	q := s.db.WithContext(ctx).Select("key", "content_type", "updated_at", "data")
	if prefix != "" {
		q = q.Where("key LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%")
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	objs := make([]Object, 0, len(rows))
	for _, r := range rows {
		objs = append(objs, Object{
			Key:          r.Key,
			Size:         int64(len(r.Data)),
			LastModified: r.UpdatedAt,
		})
	}
	sort.Slice(objs, func(i, j int) bool { return objs[i].Key < objs[j].Key })
	return objs, nil
}

func (s *Gorm) Get(ctx context.Context, key string) ([]byte, error) {
	var row object
	err := s.db.WithContext(ctx).First(&row, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.Data, nil
}

func (s *Gorm) Put(ctx context.Context, key string, data []byte, contentType string) error {
	row := object{
		Key:         key,
		Data:        data,
		ContentType: contentType,
		UpdatedAt:   time.Now(),
	}
	return s.db.WithContext(ctx).Save(&row).Error
}

func (s *Gorm) Delete(ctx context.Context, key string) error {
	res := s.db.WithContext(ctx).Delete(&object{}, "key = ?", key)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// escapeLike keeps user-visible prefixes containing % or _ literal.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}
