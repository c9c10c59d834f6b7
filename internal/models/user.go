package models

// UserProfile 家庭成员的初始体重和第三方凭证
type UserProfile struct {
	Name        string  `json:"name"`
	WeightKg    float64 `json:"weight_kg"`
	FitbitToken string  `json:"-"`
}
