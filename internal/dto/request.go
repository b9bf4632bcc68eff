package dto

type CreateProductRequest struct {
	Name string `form:"name" binding:"required,max=255"`
}

type SweepRequest struct {
	Async bool `form:"async"`
}

// SweepMessage is the queue payload asking a worker to sweep orphans.
type SweepMessage struct {
	RequestedAt int64  `json:"requested_at"`
	RequestedBy string `json:"requested_by"`
}
