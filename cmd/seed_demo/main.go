package main

import (
	"context"
	"log"
	"os"
	"time"

	"mlm_shop/internal/db"
	"mlm_shop/internal/domain"
	"mlm_shop/internal/repository"
	"mlm_shop/internal/service"

	"github.com/shopspring/decimal"
)

// Seeds a three-level referral chain (buyer -> sponsor -> grand-sponsor)
// with one unpaid order, and prints an admin token for the trigger API.
func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL not set")
	}

	pool := db.Connect(dsn)
	defer pool.Close()

	users := repository.NewUserRepository(pool)
	network := repository.NewNetworkRepository(pool)
	orders := repository.NewOrderRepository(pool)
	ctx := context.Background()

	activated := time.Now().Add(-72 * time.Hour)

	grand := &domain.User{Username: "demo_grand", MLMStatus: domain.RankPartner, ActivatedAt: &activated}
	if err := users.Create(ctx, grand); err != nil {
		log.Fatalf("create grand sponsor failed: %v", err)
	}

	sponsor := &domain.User{Username: "demo_sponsor", MLMStatus: domain.RankPartner, ActivatedAt: &activated, ReferredBy: &grand.ID}
	if err := users.Create(ctx, sponsor); err != nil {
		log.Fatalf("create sponsor failed: %v", err)
	}

	buyer := &domain.User{Username: "demo_buyer", MLMStatus: domain.RankCustomer, ReferredBy: &sponsor.ID}
	if err := users.Create(ctx, buyer); err != nil {
		log.Fatalf("create buyer failed: %v", err)
	}

	if err := network.Link(ctx, grand.ID, sponsor.ID); err != nil {
		log.Fatalf("link sponsor failed: %v", err)
	}
	if err := network.Link(ctx, sponsor.ID, buyer.ID); err != nil {
		log.Fatalf("link buyer failed: %v", err)
	}

	order := &domain.Order{
		UserID:          buyer.ID,
		Status:          domain.OrderNew,
		DeliveryStatus:  domain.DeliveryPending,
		OrderBaseRub:    decimal.NewFromInt(4500),
		TotalPayableRub: decimal.NewFromInt(4500),
		PVEarned:        decimal.NewFromInt(45),
	}
	if err := orders.Create(ctx, order); err != nil {
		log.Fatalf("create order failed: %v", err)
	}

	log.Printf("seeded: grand=%d sponsor=%d buyer=%d order=%d\n",
		grand.ID, sponsor.ID, buyer.ID, order.ID)

	service.InitJWT()
	token, err := service.GenerateAdminJWT(1)
	if err != nil {
		log.Fatalf("failed to generate admin token: %v", err)
	}
	log.Printf("admin token=%s\n", token)
}
