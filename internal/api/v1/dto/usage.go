package dto

// UsageResponseDTO reports the caller's daily quota state. Remaining is -1
// for pro users, who have no daily cap.
type UsageResponseDTO struct {
	Remaining int  `json:"remaining"`
	IsProUser bool `json:"isProUser"`
}
