package db

import "time"

type CertificateModel struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	CHR       string    `gorm:"column:chr;uniqueIndex;not null"`
	CAR       string    `gorm:"column:car;index;not null"`
	Role      string    `gorm:"index;not null"`
	Raw       []byte    `gorm:"type:bytea;not null"`
	NotBefore time.Time `gorm:"not null"`
	NotAfter  time.Time `gorm:"index;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (CertificateModel) TableName() string {
	return "certificates"
}
