package model

// 連番カウンタ。name ごとに1行
type Counter struct {
	Name  string `gorm:"type:varchar(100);primaryKey" json:"name"`
	Value int64  `gorm:"not null;default:0" json:"value"`
}
