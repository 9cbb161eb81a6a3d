package service

import (
	"testing"
	"time"

	"mlm_shop/internal/domain"

	"github.com/shopspring/decimal"
)

func partner(id int64, activatedAgo time.Duration) *domain.User {
	at := time.Now().Add(-activatedAgo)
	return &domain.User{ID: id, MLMStatus: domain.RankPartner, ActivatedAt: &at}
}

func customer(id int64) *domain.User {
	return &domain.User{ID: id, MLMStatus: domain.RankCustomer}
}

func typicalOrder(base int64) *domain.Order {
	return &domain.Order{
		ID:           10,
		UserID:       1,
		OrderBaseRub: decimal.NewFromInt(base),
	}
}

func findAccrual(t *testing.T, plan []BonusAccrual, recipient int64, kind domain.BonusKind) *BonusAccrual {
	t.Helper()
	for i := range plan {
		if plan[i].RecipientID == recipient && plan[i].Kind == kind {
			return &plan[i]
		}
	}
	return nil
}

func TestBuildStandardPlan_ThreeLevelChain(t *testing.T) {
	s := domain.DefaultSettings()
	buyer := customer(1)
	order := typicalOrder(4500)

	// A is long past the fast-start window, B is a partner, C a customer
	a := partner(2, 365*24*time.Hour)
	b := partner(3, 365*24*time.Hour)
	c := customer(4)

	upline := []domain.UplineEntry{
		{UserID: 2, Level: 1},
		{UserID: 3, Level: 2},
		{UserID: 4, Level: 3},
	}
	users := map[int64]*domain.User{2: a, 3: b, 4: c}

	plan := BuildStandardPlan(s, order, buyer, upline, users, time.Now())

	accA := findAccrual(t, plan, 2, domain.BonusReferral)
	if accA == nil {
		t.Fatal("expected L1 referral accrual for A")
	}
	if want := decimal.NewFromInt(900); !accA.Amount.Equal(want) {
		t.Errorf("A amount = %s, want %s", accA.Amount, want)
	}

	accB := findAccrual(t, plan, 3, domain.BonusReferral)
	if accB == nil {
		t.Fatal("expected L2 referral accrual for B")
	}
	if want := decimal.NewFromInt(225); !accB.Amount.Equal(want) {
		t.Errorf("B amount = %s, want %s", accB.Amount, want)
	}

	if acc := findAccrual(t, plan, 4, domain.BonusReferral); acc != nil {
		t.Errorf("customer C at L3 should receive nothing, got %s", acc.Amount)
	}
}

func TestPlans_FastStartExclusivity(t *testing.T) {
	s := domain.DefaultSettings()
	buyer := customer(1)
	order := typicalOrder(4500)

	// A activated a week ago, well inside the 8-week window
	a := partner(2, 7*24*time.Hour)
	upline := []domain.UplineEntry{{UserID: 2, Level: 1}}
	users := map[int64]*domain.User{2: a}
	now := time.Now()

	standard := BuildStandardPlan(s, order, buyer, upline, users, now)
	if acc := findAccrual(t, standard, 2, domain.BonusReferral); acc != nil {
		t.Errorf("fast-start-eligible A must not get the standard L1 rate, got %s", acc.Amount)
	}

	special := BuildSpecialPlan(s, order, buyer, upline, users, now)
	acc := findAccrual(t, special, 2, domain.BonusFastStart)
	if acc == nil {
		t.Fatal("expected fast-start accrual for A")
	}
	if want := decimal.NewFromInt(1125); !acc.Amount.Equal(want) {
		t.Errorf("fast-start amount = %s, want %s", acc.Amount, want)
	}

	// exactly one L1-related accrual across both passes
	count := 0
	for _, p := range append(standard, special...) {
		if p.Level == 1 && p.Currency == domain.CurrencyRUB {
			count++
		}
	}
	if count != 1 {
		t.Errorf("L1 RUB accruals = %d, want exactly 1", count)
	}
}

func TestBuildStandardPlan_WindowExpired(t *testing.T) {
	s := domain.DefaultSettings()
	buyer := customer(1)
	order := typicalOrder(4500)

	// activated exactly 8 weeks ago: the deadline has passed
	a := partner(2, time.Duration(s.FastStartWeeks)*7*24*time.Hour)
	upline := []domain.UplineEntry{{UserID: 2, Level: 1}}
	users := map[int64]*domain.User{2: a}

	plan := BuildStandardPlan(s, order, buyer, upline, users, time.Now())
	acc := findAccrual(t, plan, 2, domain.BonusReferral)
	if acc == nil {
		t.Fatal("expected standard L1 accrual after the window expired")
	}
	if want := decimal.NewFromInt(900); !acc.Amount.Equal(want) {
		t.Errorf("amount = %s, want %s", acc.Amount, want)
	}
}

func TestBuildStandardPlan_CustomerFirstlineFlag(t *testing.T) {
	s := domain.DefaultSettings()
	buyer := customer(1)
	order := typicalOrder(1000)

	flagged := customer(2)
	flagged.FirstlineBonus = true
	plain := customer(3)

	upline := []domain.UplineEntry{
		{UserID: 2, Level: 1},
		{UserID: 3, Level: 5},
	}
	users := map[int64]*domain.User{2: flagged, 3: plain}

	plan := BuildStandardPlan(s, order, buyer, upline, users, time.Now())

	if acc := findAccrual(t, plan, 2, domain.BonusReferral); acc == nil {
		t.Error("flagged customer at L1 should receive the first-line bonus")
	}
	if acc := findAccrual(t, plan, 3, domain.BonusReferral); acc != nil {
		t.Error("customer at L5 must never receive a referral bonus")
	}
}

func TestBuildStandardPlan_CashbackAndPV(t *testing.T) {
	s := domain.DefaultSettings()
	order := typicalOrder(4500)
	order.PVEarned = decimal.NewFromInt(45)

	// customer buyer: PV yes, cashback no
	plan := BuildStandardPlan(s, order, customer(1), nil, nil, time.Now())
	if acc := findAccrual(t, plan, 1, domain.BonusCashback); acc != nil {
		t.Error("customer buyer must not receive cashback")
	}
	pv := findAccrual(t, plan, 1, domain.BonusPV)
	if pv == nil {
		t.Fatal("expected PV accrual for the buyer")
	}
	if pv.Currency != domain.CurrencyPV {
		t.Errorf("PV currency = %s", pv.Currency)
	}

	// partner buyer: cashback in VWC
	partnerBuyer := partner(1, 365*24*time.Hour)
	plan = BuildStandardPlan(s, order, partnerBuyer, nil, nil, time.Now())
	cb := findAccrual(t, plan, 1, domain.BonusCashback)
	if cb == nil {
		t.Fatal("expected cashback for partner buyer")
	}
	if want := decimal.NewFromInt(225); !cb.Amount.Equal(want) {
		t.Errorf("cashback = %s, want %s", cb.Amount, want)
	}
	if cb.Currency != domain.CurrencyVWC {
		t.Errorf("cashback currency = %s, want %s", cb.Currency, domain.CurrencyVWC)
	}
}

func TestBuildSpecialPlan_InfinityRankGate(t *testing.T) {
	s := domain.DefaultSettings()
	buyer := customer(1)
	order := typicalOrder(100000)

	deepCustomer := customer(2)
	deepPartner := partner(3, 365*24*time.Hour)

	upline := []domain.UplineEntry{
		{UserID: 2, Level: 20},
		{UserID: 3, Level: 21},
	}
	users := map[int64]*domain.User{2: deepCustomer, 3: deepPartner}

	plan := BuildSpecialPlan(s, order, buyer, upline, users, time.Now())

	if acc := findAccrual(t, plan, 2, domain.BonusInfinity); acc != nil {
		t.Error("customer at L20 must never receive an infinity bonus")
	}
	acc := findAccrual(t, plan, 3, domain.BonusInfinity)
	if acc == nil {
		t.Fatal("expected infinity accrual for the deep partner")
	}
	if want := decimal.NewFromInt(250); !acc.Amount.Equal(want) {
		t.Errorf("infinity amount = %s, want %s", acc.Amount, want)
	}
}

func TestBuildSpecialPlan_InfinityBelowThreshold(t *testing.T) {
	s := domain.DefaultSettings()
	buyer := customer(1)
	order := typicalOrder(100000)

	p := partner(2, 365*24*time.Hour)
	upline := []domain.UplineEntry{{UserID: 2, Level: domain.InfinityMinLevel - 1}}
	users := map[int64]*domain.User{2: p}

	plan := BuildSpecialPlan(s, order, buyer, upline, users, time.Now())
	if len(plan) != 0 {
		t.Errorf("no infinity below level %d, got %d accruals", domain.InfinityMinLevel, len(plan))
	}
}

func TestPercentOf_Rounding(t *testing.T) {
	cases := []struct {
		base    string
		percent string
		want    string
	}{
		{"4500", "20", "900"},
		{"4500", "5", "225"},
		{"999.99", "0.5", "5"},
		{"101", "0.25", "0.25"},
		{"333.33", "1", "3.33"},
		{"0.01", "0.5", "0"},
	}
	for _, tc := range cases {
		base, _ := decimal.NewFromString(tc.base)
		pct, _ := decimal.NewFromString(tc.percent)
		want, _ := decimal.NewFromString(tc.want)
		if got := percentOf(base, pct); !got.Equal(want) {
			t.Errorf("percentOf(%s, %s) = %s, want %s", tc.base, tc.percent, got, want)
		}
	}
}

func TestSplitLeaderBudget(t *testing.T) {
	budget := decimal.NewFromInt(1000)

	t.Run("empty cohort", func(t *testing.T) {
		if got := SplitLeaderBudget(budget, nil); len(got) != 0 {
			t.Errorf("expected empty result, got %v", got)
		}
	})

	t.Run("single candidate takes all", func(t *testing.T) {
		got := SplitLeaderBudget(budget, []LeaderCandidate{{UserID: 1, Volume: decimal.NewFromInt(50)}})
		if !got[1].Equal(budget) {
			t.Errorf("single candidate share = %s, want %s", got[1], budget)
		}
	})

	t.Run("top fifth takes 80 percent", func(t *testing.T) {
		cohort := []LeaderCandidate{
			{UserID: 1, Volume: decimal.NewFromInt(5000)},
			{UserID: 2, Volume: decimal.NewFromInt(100)},
			{UserID: 3, Volume: decimal.NewFromInt(100)},
			{UserID: 4, Volume: decimal.NewFromInt(100)},
			{UserID: 5, Volume: decimal.NewFromInt(100)},
		}
		got := SplitLeaderBudget(budget, cohort)

		// ceil(5*0.2)=1 leader, alone in the top pool
		if want := decimal.NewFromInt(800); !got[1].Equal(want) {
			t.Errorf("leader share = %s, want %s", got[1], want)
		}
		if want := decimal.NewFromInt(50); !got[2].Equal(want) {
			t.Errorf("follower share = %s, want %s", got[2], want)
		}
	})

	t.Run("zero volume splits equally", func(t *testing.T) {
		cohort := []LeaderCandidate{
			{UserID: 1, Volume: decimal.Zero},
			{UserID: 2, Volume: decimal.Zero},
		}
		got := SplitLeaderBudget(budget, cohort)
		// ties keep input order; user 1 lands in the top pool
		if want := decimal.NewFromInt(800); !got[1].Equal(want) {
			t.Errorf("first share = %s, want %s", got[1], want)
		}
		if want := decimal.NewFromInt(200); !got[2].Equal(want) {
			t.Errorf("second share = %s, want %s", got[2], want)
		}
	})

	t.Run("total never exceeds budget", func(t *testing.T) {
		cohort := []LeaderCandidate{
			{UserID: 1, Volume: decimal.NewFromInt(333)},
			{UserID: 2, Volume: decimal.NewFromInt(333)},
			{UserID: 3, Volume: decimal.NewFromInt(334)},
		}
		got := SplitLeaderBudget(decimal.NewFromFloat(100.01), cohort)
		total := decimal.Zero
		for _, v := range got {
			total = total.Add(v)
		}
		if total.GreaterThan(decimal.NewFromFloat(100.01)) {
			t.Errorf("distributed %s exceeds budget", total)
		}
	})
}

func TestBonusOperationID_Deterministic(t *testing.T) {
	a := domain.BonusOperationID(domain.BonusReferral, 42, 7)
	b := domain.BonusOperationID(domain.BonusReferral, 42, 7)
	if a != b {
		t.Errorf("operation ids differ: %s vs %s", a, b)
	}
	if a == domain.BonusOperationID(domain.BonusFastStart, 42, 7) {
		t.Error("different kinds must yield different operation ids")
	}
}
