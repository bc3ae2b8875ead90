package domain

// Municipality is an IBGE municipality reference row.
type Municipality struct {
	IBGECode string `json:"ibge_code" gorm:"type:text;primaryKey;column:ibge_code"`
	Name     string `json:"name" gorm:"type:text;not null"`
	State    string `json:"state" gorm:"type:char(2);not null"`
}

func (Municipality) TableName() string { return "municipalities" }
