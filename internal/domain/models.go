// Package domain defines the persistence models for the news archive: raw
// news records, topic snapshots, and learning materials. These types are
// mapped with GORM and form the core data layer of the archive.
//
// Every model carries a storage-internal RowID that is never serialized and
// never used for addressing by callers. Rows are addressed by their domain
// key (OriginalLink, ID) or by time-ordered position.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// RawNewsRecord is a collected news item. Records are deduplicated on
// OriginalLink and pruned by CollectedAt once they fall outside the retained
// window.
//
// Fields:
//   - RowID: storage-assigned key (hidden from JSON).
//   - OriginalLink: natural unique key of the item (publisher URL).
//   - Link: aggregator/portal URL, when the source provides one.
//   - Title / Description / Source: source-provided text fields.
//   - PublishedAt: publication time reported by the source, if any.
//   - CollectedAt: time the item was ingested; drives ordering and retention.
//   - Extra: arbitrary additional source fields, stored as a JSON object.
type RawNewsRecord struct {
	RowID        uint              `json:"-"                      gorm:"column:row_id;primaryKey;autoIncrement"`
	OriginalLink string            `json:"original_link"          gorm:"column:original_link;type:varchar(2048);not null;uniqueIndex:ux_origin_news_link"`
	Link         string            `json:"link,omitempty"         gorm:"column:link;type:varchar(2048)"`
	Title        string            `json:"title"                  gorm:"column:title;type:text"`
	Description  string            `json:"description,omitempty"  gorm:"column:description;type:text"`
	Source       string            `json:"source,omitempty"       gorm:"column:source;type:varchar(255)"`
	PublishedAt  *time.Time        `json:"published_at,omitempty" gorm:"column:published_at"`
	CollectedAt  time.Time         `json:"collected_at"           gorm:"column:collected_at;not null;index:idx_origin_news_collected_at"`
	Extra        datatypes.JSONMap `json:"extra,omitempty"        gorm:"column:extra"`
}

// TableName returns the database table name for RawNewsRecord.
func (RawNewsRecord) TableName() string { return "origin_news" }

// TopicSnapshot is an immutable, timestamped grouping of topics produced by
// an upstream analysis batch. Snapshots are append-only.
type TopicSnapshot struct {
	RowID     uint           `json:"-"          gorm:"column:row_id;primaryKey;autoIncrement"`
	CreatedAt time.Time      `json:"created_at" gorm:"column:created_at;not null;index:idx_news_categorized_created_at"`
	Groups    datatypes.JSON `json:"groups"     gorm:"column:groups"`
}

// TableName returns the database table name for TopicSnapshot.
func (TopicSnapshot) TableName() string { return "news_categorized" }

// LearningMaterial is a generated study document built from a set of
// articles. Its ID is assigned by the generation pipeline and is the only
// identity callers use; RowID is internal to storage.
//
// Content fields are stored as given. Audio fields start out nil and are
// filled in one at a time as audio is generated; each fill bumps UpdatedAt,
// which drives the list validator together with the row count.
type LearningMaterial struct {
	RowID        uint           `json:"-"                       gorm:"column:row_id;primaryKey;autoIncrement"`
	ID           string         `json:"id"                      gorm:"column:material_id;type:varchar(128);not null;uniqueIndex:ux_learning_materials_id"`
	CreatedAt    time.Time      `json:"created_at"              gorm:"column:created_at;not null;index:idx_learning_materials_created_at"`
	UpdatedAt    time.Time      `json:"updated_at"              gorm:"column:updated_at;index:idx_learning_materials_updated_at"`
	Title        string         `json:"title"                   gorm:"column:title;type:text"`
	Vocab        datatypes.JSON `json:"vocab,omitempty"         gorm:"column:vocab"`
	Summary      string         `json:"summary,omitempty"       gorm:"column:summary;type:text"`
	SummaryBi    string         `json:"summary_bi,omitempty"    gorm:"column:summary_bi;type:text"`
	Podcast      string         `json:"podcast,omitempty"       gorm:"column:podcast;type:text"`
	Quiz         datatypes.JSON `json:"quiz,omitempty"          gorm:"column:quiz"`
	Articles     datatypes.JSON `json:"articles,omitempty"      gorm:"column:articles"`
	VocabLecture string         `json:"vocab_lecture,omitempty" gorm:"column:vocab_lecture;type:text"`

	AudioVocabLecture *string `json:"audio_vocab_lecture" gorm:"column:audio_vocab_lecture"`
	AudioSummary      *string `json:"audio_summary"       gorm:"column:audio_summary"`
	AudioSummaryBi    *string `json:"audio_summary_bi"    gorm:"column:audio_summary_bi"`
	AudioPodcast      *string `json:"audio_podcast"       gorm:"column:audio_podcast"`
}

// TableName returns the database table name for LearningMaterial.
func (LearningMaterial) TableName() string { return "learning_materials" }

// Audio returns the URL stored for field, or nil when the audio has not been
// generated yet (or field is unknown).
func (m *LearningMaterial) Audio(field AudioField) *string {
	switch field {
	case AudioVocabLecture:
		return m.AudioVocabLecture
	case AudioSummary:
		return m.AudioSummary
	case AudioSummaryBi:
		return m.AudioSummaryBi
	case AudioPodcast:
		return m.AudioPodcast
	}
	return nil
}
