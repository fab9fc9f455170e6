package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"collabtext/internal/models"
	"collabtext/internal/store"
)

// DocumentRecord is the gorm row for one document snapshot.
type DocumentRecord struct {
	DocumentID   string    `gorm:"column:document_id;primaryKey"`
	Content      string    `gorm:"column:content;type:text;not null"`
	LastModified time.Time `gorm:"column:last_modified;not null"`
}

func (DocumentRecord) TableName() string { return "documents" }

func (r DocumentRecord) toModel() models.Document {
	return models.Document{
		DocumentID:   r.DocumentID,
		Content:      r.Content,
		LastModified: r.LastModified,
	}
}

type DocumentRepository struct {
	DB *gorm.DB
}

var _ store.DocumentStore = (*DocumentRepository)(nil)

// OpenPostgres connects with the postgres driver and migrates the schema.
func OpenPostgres(dsn string) (*DocumentRepository, error) {
	return open(postgres.Open(dsn))
}

// OpenSQLite opens (or creates) a sqlite database file and migrates the schema.
func OpenSQLite(path string) (*DocumentRepository, error) {
	return open(sqlite.Open(path))
}

func open(dialector gorm.Dialector) (*DocumentRepository, error) {
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewDocumentRepository(db)
}

func NewDocumentRepository(db *gorm.DB) (*DocumentRepository, error) {
	if err := db.AutoMigrate(&DocumentRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &DocumentRepository{DB: db}, nil
}

func (r *DocumentRepository) Get(ctx context.Context, documentID string) (*models.Document, error) {
	var rec DocumentRecord
	err := r.DB.WithContext(ctx).Where("document_id = ?", documentID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find document %q: %w", documentID, err)
	}
	doc := rec.toModel()
	return &doc, nil
}

func (r *DocumentRepository) GetOrCreate(ctx context.Context, documentID string) (*models.Document, error) {
	rec := DocumentRecord{DocumentID: documentID, LastModified: time.Now().UTC()}
	err := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rec).Error
	if err != nil {
		return nil, fmt.Errorf("get or create document %q: %w", documentID, err)
	}
	return r.Get(ctx, documentID)
}

func (r *DocumentRepository) Upsert(ctx context.Context, documentID, content string) (*models.Document, error) {
	rec := DocumentRecord{
		DocumentID:   documentID,
		Content:      content,
		LastModified: time.Now().UTC(),
	}
	err := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "document_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"content", "last_modified"}),
		}).
		Create(&rec).Error
	if err != nil {
		return nil, fmt.Errorf("upsert document %q: %w", documentID, err)
	}
	doc := rec.toModel()
	return &doc, nil
}

func (r *DocumentRepository) List(ctx context.Context) ([]models.Document, error) {
	var recs []DocumentRecord
	if err := r.DB.WithContext(ctx).Order("document_id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	out := make([]models.Document, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.toModel())
	}
	return out, nil
}

func (r *DocumentRepository) Delete(ctx context.Context, documentID string) error {
	res := r.DB.WithContext(ctx).Where("document_id = ?", documentID).Delete(&DocumentRecord{})
	if res.Error != nil {
		return fmt.Errorf("delete document %q: %w", documentID, res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Clear deletes all rows. gorm refuses unconditioned deletes, hence the
// explicit always-true condition.
func (r *DocumentRepository) Clear(ctx context.Context) (int64, error) {
	res := r.DB.WithContext(ctx).Where("1 = 1").Delete(&DocumentRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("clear documents: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *DocumentRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *DocumentRepository) Close() error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
