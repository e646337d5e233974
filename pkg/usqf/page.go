package usqf

// Page is the paginated result shape from spec §3: totalPages =
// ceil(totalElements/size); an empty result yields totalPages=0, last=true.
type Page[T any] struct {
	Page          int  `json:"page"`
	Size          int  `json:"size"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int  `json:"totalPages"`
	Last          bool `json:"last"`
	Content       []T  `json:"content"`
}

// NewPage computes TotalPages/Last from TotalElements and Size per spec §3.
func NewPage[T any](page, size int, totalElements int64, content []T) Page[T] {
	if content == nil {
		content = []T{}
	}

	if totalElements == 0 {
		return Page[T]{Page: page, Size: size, TotalElements: 0, TotalPages: 0, Last: true, Content: content}
	}

	totalPages := int((totalElements + int64(size) - 1) / int64(size))
	last := page >= totalPages-1

	return Page[T]{
		Page:          page,
		Size:          size,
		TotalElements: totalElements,
		TotalPages:    totalPages,
		Last:          last,
		Content:       content,
	}
}
