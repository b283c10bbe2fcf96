package router

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/referralpay/ledger/internal/commission"
	"github.com/referralpay/ledger/internal/ledger"
	"github.com/referralpay/ledger/internal/logger"
	"github.com/referralpay/ledger/internal/member"
	"github.com/referralpay/ledger/internal/middleware"
	"github.com/referralpay/ledger/internal/policy"
	"github.com/referralpay/ledger/internal/withdrawal"
)

func NewRouter(
	memberH *member.Handler,
	ledgerH *ledger.Handler,
	withdrawalH *withdrawal.Handler,
	commissionH *commission.Handler,
	policyH *policy.Handler,
	jwtSecret []byte,
	hashKey string,
	memberRepo middleware.MemberFinder,
) chi.Router {
	r := chi.NewRouter()

	r.Use(logger.WithLogging)
	r.Use(chiMiddleware.Recoverer)

	r.Use(middleware.GzipHandler)
	if hashKey != "" {
		r.Use(middleware.HashHandler(hashKey))
	}

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/member", func(r chi.Router) {
		r.Post("/register", memberH.Register)
		r.Post("/login", memberH.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.JWTMiddleware(jwtSecret, memberRepo))

			r.Get("/balance", ledgerH.GetBalance)
			r.Post("/wallet", memberH.UpdateWallet)
			r.Post("/withdrawals", withdrawalH.CreateRequest)
			r.Get("/withdrawals", withdrawalH.ListOwnRequests)
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.JWTMiddleware(jwtSecret, memberRepo))
		r.Use(middleware.AdminOnly)

		r.Mount("/withdrawals", withdrawalH.AdminRoutes())
		r.Mount("/members", adminMemberRoutes(memberH, commissionH))
		r.Mount("/policy", policyH.Routes())
	})

	return r
}

// adminMemberRoutes merges membership management with payment
// confirmation under one /members prefix.
func adminMemberRoutes(memberH *member.Handler, commissionH *commission.Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/{id}/block", memberH.Block)
	r.Post("/{id}/unblock", memberH.Unblock)
	r.Delete("/{id}", memberH.Delete)
	r.Post("/{id}/confirm-payment", commissionH.ConfirmPayment)
	return r
}
