package profile

import (
	"fmt"
	"net/url"

	"github.com/yanun0323/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yongdono/kungfu/internal/codec"
	"github.com/yongdono/kungfu/internal/schema"
	"github.com/yongdono/kungfu/pkg/exception"
)

const (
	defaultPostgresHost    = "localhost"
	defaultPostgresPort    = 5432
	defaultPostgresSSLMode = "disable"
)

// PostgresOption defines connection options for the shared backend.
type PostgresOption struct {
	Host       string
	Port       int
	User       string
	Password   string
	Database   string
	SSLMode    string
	Params     map[string]string
	ConnString string
	Config     *gorm.Config
}

type profileRow struct {
	Tag     int32  `gorm:"primaryKey;autoIncrement:false"`
	UID     int64  `gorm:"column:uid;primaryKey;autoIncrement:false"`
	Payload []byte `gorm:"not null"`
}

func (profileRow) TableName() string {
	return "kungfu_profile"
}

type postgresStore struct {
	db *gorm.DB
}

// OpenPostgres connects, migrates the profile table and returns a Store.
func OpenPostgres(option PostgresOption) (Store, error) {
	dsn, err := option.dsn()
	if err != nil {
		return nil, err
	}
	config := option.Config
	if config == nil {
		config = &gorm.Config{}
	}
	db, err := gorm.Open(postgres.Open(dsn), config)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if err := db.AutoMigrate(&profileRow{}); err != nil {
		return nil, errors.Wrap(err, "migrate profile table")
	}
	return &postgresStore{db: db}, nil
}

func (s *postgresStore) Set(p schema.Payload) error {
	uid, buf, err := encodeRecord(p)
	if err != nil {
		return err
	}
	row := profileRow{Tag: int32(p.Tag()), UID: int64(uid), Payload: buf}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tag"}, {Name: "uid"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload"}),
	}).Create(&row).Error
}

func (s *postgresStore) Get(tag schema.Tag, uid uint64) (schema.Payload, error) {
	var rows []profileRow
	if err := s.db.Where("tag = ? AND uid = ?", int32(tag), int64(uid)).Limit(1).Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, exception.ErrRecordNotFound
	}
	return codec.Decode(tag, rows[0].Payload)
}

func (s *postgresStore) GetAll(tag schema.Tag) ([]schema.Payload, error) {
	var rows []profileRow
	if err := s.db.Where("tag = ?", int32(tag)).Find(&rows).Error; err != nil {
		return nil, err
	}
	// uid is stored as signed, so order in Go to match the uint64 order.
	sortRows(rows)
	out := make([]schema.Payload, 0, len(rows))
	for _, row := range rows {
		p, err := codec.Decode(tag, row.Payload)
		if err != nil {
			return nil, errors.Wrap(err, "decode profile record").With("tag", tag)
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *postgresStore) Remove(tag schema.Tag, uid uint64) error {
	return s.db.Where("tag = ? AND uid = ?", int32(tag), int64(uid)).Delete(&profileRow{}).Error
}

func (s *postgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func sortRows(rows []profileRow) {
	for i := 1; i < len(rows); i++ {
		for j := i; j > 0 && uint64(rows[j].UID) < uint64(rows[j-1].UID); j-- {
			rows[j], rows[j-1] = rows[j-1], rows[j]
		}
	}
}

func (opt PostgresOption) dsn() (string, error) {
	if opt.ConnString != "" {
		return opt.ConnString, nil
	}

	host := opt.Host
	if host == "" {
		host = defaultPostgresHost
	}
	port := opt.Port
	if port == 0 {
		port = defaultPostgresPort
	}
	sslMode := opt.SSLMode
	if sslMode == "" {
		sslMode = defaultPostgresSSLMode
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
	}
	if opt.User != "" {
		if opt.Password != "" {
			u.User = url.UserPassword(opt.User, opt.Password)
		} else {
			u.User = url.User(opt.User)
		}
	}
	if opt.Database != "" {
		u.Path = "/" + opt.Database
	}

	query := url.Values{}
	query.Set("sslmode", sslMode)
	for key, value := range opt.Params {
		if key == "" {
			continue
		}
		query.Set(key, value)
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}
