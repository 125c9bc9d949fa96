package room

import "time"

type Room struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedBy   int       `json:"createdBy"`
	CreatorName string    `json:"creatorName"`
	IsPrivate   bool      `json:"isPrivate"`
	CreatedAt   time.Time `json:"createdAt"`
	Members     []Member  `json:"members,omitempty"`
}

type Member struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
}

type CreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsPrivate   bool   `json:"isPrivate"`
}

type ListPage struct {
	Rooms       []*Room `json:"rooms"`
	TotalPages  int     `json:"totalPages"`
	CurrentPage int     `json:"currentPage"`
	Total       int     `json:"total"`
}
