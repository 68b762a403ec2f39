package models

// Requests for the prediction HTTP endpoints.

type PredictionRequest struct {
	Pair string `query:"pair" json:"pair" validate:"required,alphanum,max=20"`
}

type PredictionHistoryRequest struct {
	Pair  string `query:"pair" json:"pair" validate:"required,alphanum,max=20"`
	From  string `query:"from" json:"from"`
	To    string `query:"to" json:"to"`
	Limit int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=5000"`
}

type ModelsRequest struct {
	Pair  string `query:"pair" json:"pair" validate:"required,alphanum,max=20"`
	Limit int    `query:"limit" json:"limit" default:"20" validate:"gte=1,lte=200"`
}

type PromoteRequest struct {
	ID string `param:"id" json:"id" validate:"required,uuid"`
}

type TrainRequest struct {
	Pair string `json:"pair" validate:"required,alphanum,max=20"`
}

type DriftRequest struct {
	Pair      string `query:"pair" json:"pair" validate:"omitempty,alphanum,max=20"`
	Triggered bool   `query:"triggered" json:"triggered"`
}
