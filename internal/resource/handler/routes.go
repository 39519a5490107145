package handler

import (
	"github.com/go-chi/chi/v5"
)

// Routes mounts the resource API. Callers wrap it with authentication.
func Routes(requests *RequestHandler, stock *StockHandler) chi.Router {
	r := chi.NewRouter()

	r.Route("/requests", func(r chi.Router) {
		r.Get("/", requests.List)
		r.Post("/", requests.Submit)
		r.Get("/{id}", requests.Get)
		r.Post("/{id}/approve", requests.Approve)
		r.Post("/{id}/reject", requests.Reject)
		r.Post("/{id}/deliver", requests.Deliver)
		r.Post("/{id}/feedback", requests.Feedback)
	})

	r.Route("/cell-requests", func(r chi.Router) {
		r.Get("/", requests.ListCell)
		r.Post("/", requests.SubmitCell)
		r.Get("/{id}", requests.GetCell)
		r.Post("/{id}/approve", requests.ApproveCell)
		r.Post("/{id}/reject", requests.RejectCell)
		r.Post("/{id}/deliver", requests.DeliverCell)
	})

	r.Get("/district-stock", stock.ListDistrictStock)
	r.Post("/district-stock", stock.AddDistrictStock)
	r.Get("/cell-balances", stock.ListCellBalances)
	r.Get("/farmer-balances", stock.ListFarmerBalances)
	r.Post("/farmer-balances/deduct", stock.DeductFarmerStock)

	return r
}
