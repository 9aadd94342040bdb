package server

import "segmentline/internal/domain"

// Request payloads

type SetNameRequest struct {
	Name string `json:"name" example:"Power Users"`
}

type SetSlotRequest struct {
	Value string `json:"value" example:"city" doc:"Catalog value, or empty to clear the slot"`
}

// Inputs

type slotPath struct {
	Index int `path:"index" doc:"Zero-based slot index"`
}

type setNameInput struct {
	Body SetNameRequest
}

type setSlotInput struct {
	Index int `path:"index" doc:"Zero-based slot index"`
	Body  SetSlotRequest
}

// Outputs

type viewOutput struct {
	Body domain.View
}

type catalogOutput struct {
	Body CatalogResponse
}

type CatalogResponse struct {
	Items []domain.CatalogEntry `json:"items"`
}

type healthOutput struct {
	Body map[string]string
}

func viewResponse(v domain.View) *viewOutput {
	return &viewOutput{Body: v}
}
