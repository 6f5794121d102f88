package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"bitbucket.org/prefsaude/compras_backend/config"
	"bitbucket.org/prefsaude/compras_backend/models"
	"bitbucket.org/prefsaude/compras_backend/workflow"
	"github.com/shopspring/decimal"
)

func TestSubContractPostingDebitsBalancesAndQuota(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	registration, item, unit := seedRegistration(t, ctx, "100", "10.00", "40")

	doc, err := workflow.CreateSubContract(ctx, &workflow.NewSubContract{
		Number:              "CT-001/2024",
		Object:              "Aquisição de medicamentos",
		PriceRegistrationId: registration.ID,
		HealthUnitId:        unit.ID,
		Lines: []workflow.ConsumptionLine{
			{RegisteredItemId: item.ID, Quantity: dec("30")},
		},
	})
	if err != nil {
		t.Fatalf("CreateSubContract: %v", err)
	}
	if !doc.ItemsTotalValue.Equal(dec("300")) {
		t.Fatalf("items total = %s, want 300", doc.ItemsTotalValue)
	}
	assertItemBalance(t, ctx, item.ID, "70")
	assertQuotaConsumed(t, ctx, item.ID, unit.ID, "30")

	// Editing the document reverses and reapplies; only the new lines count.
	doc, err = workflow.UpdateSubContract(ctx, doc.ID, &workflow.NewSubContract{
		Number:              "CT-001/2024",
		Object:              "Aquisição de medicamentos",
		PriceRegistrationId: registration.ID,
		HealthUnitId:        unit.ID,
		Lines: []workflow.ConsumptionLine{
			{RegisteredItemId: item.ID, Quantity: dec("10")},
		},
	})
	if err != nil {
		t.Fatalf("UpdateSubContract: %v", err)
	}
	if !doc.ItemsTotalValue.Equal(dec("100")) {
		t.Fatalf("items total after edit = %s, want 100", doc.ItemsTotalValue)
	}
	assertItemBalance(t, ctx, item.ID, "90")
	assertQuotaConsumed(t, ctx, item.ID, unit.ID, "10")

	// An item with posted records cannot be deleted.
	err = models.DeleteRegisteredItem(ctx, item.ID)
	var linked *models.LinkedDocumentsExistError
	if !errors.As(err, &linked) {
		t.Fatalf("DeleteRegisteredItem: err = %v, want LinkedDocumentsExistError", err)
	}

	// Deleting the document credits everything back.
	if err := workflow.DeleteSubContract(ctx, doc.ID); err != nil {
		t.Fatalf("DeleteSubContract: %v", err)
	}
	assertItemBalance(t, ctx, item.ID, "100")
	assertQuotaConsumed(t, ctx, item.ID, unit.ID, "0")

	records, err := workflow.GetDocumentConsumptions(config.GetDB().WithContext(ctx),
		workflow.ConsumerRef{Type: models.ConsumerDocumentTypeSubContract, ID: doc.ID})
	if err != nil {
		t.Fatalf("GetDocumentConsumptions: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("records after delete = %d, want 0", len(records))
	}
}

func TestRegisteredItemListCacheRefillsAfterPosting(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	registration, item, unit := seedRegistration(t, ctx, "100", "10.00", "40")

	// Cold read: the miss refills the cache under the redis refill lock.
	items, err := models.GetRegisteredItems(ctx, registration.ID)
	if err != nil {
		t.Fatalf("GetRegisteredItems: %v", err)
	}
	if len(items) != 1 || !items[0].AvailableBalance.Equal(dec("100")) {
		t.Fatalf("cold read = %+v, want one item with balance 100", items)
	}

	_, err = workflow.CreateSubContract(ctx, &workflow.NewSubContract{
		Number:              "CT-005/2024",
		PriceRegistrationId: registration.ID,
		HealthUnitId:        unit.ID,
		Lines:               []workflow.ConsumptionLine{{RegisteredItemId: item.ID, Quantity: dec("30")}},
	})
	if err != nil {
		t.Fatalf("CreateSubContract: %v", err)
	}

	// Posting invalidated the list; the refill must see the debited balance, and
	// the refill lock must have been released so back-to-back reads both work.
	for i := 0; i < 2; i++ {
		items, err = models.GetRegisteredItems(ctx, registration.ID)
		if err != nil {
			t.Fatalf("GetRegisteredItems (read %d): %v", i, err)
		}
		if len(items) != 1 || !items[0].AvailableBalance.Equal(dec("70")) {
			t.Fatalf("read %d = %+v, want one item with balance 70", i, items)
		}
	}
}

func TestCommitmentPostingFailsAtomically(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	registration, item, unit := seedRegistration(t, ctx, "100", "10.00", "100")

	secondItem, err := models.CreateRegisteredItem(ctx, &models.NewRegisteredItem{
		PriceRegistrationId: registration.ID,
		Description:         "Soro fisiológico 500ml",
		UnitOfMeasure:       "FR",
		RegisteredQuantity:  dec("50"),
		UnitPrice:           dec("4.00"),
	})
	if err != nil {
		t.Fatalf("CreateRegisteredItem: %v", err)
	}
	if err := models.ReplaceItemQuotas(ctx, secondItem.ID, []models.QuotaAllocation{
		{HealthUnitId: unit.ID, AllocatedQuantity: dec("50")},
	}); err != nil {
		t.Fatalf("ReplaceItemQuotas: %v", err)
	}

	// Second line overdraws: the whole document must roll back, including the
	// first line's successful debit.
	_, err = workflow.CreateCommitment(ctx, &workflow.NewCommitment{
		Number:              "2024NE000123",
		PriceRegistrationId: registration.ID,
		HealthUnitId:        unit.ID,
		Lines: []workflow.ConsumptionLine{
			{RegisteredItemId: item.ID, Quantity: dec("20")},
			{RegisteredItemId: secondItem.ID, Quantity: dec("50.0001")},
		},
	})
	var insufficient *models.InsufficientBalanceError
	if !errors.As(err, &insufficient) {
		t.Fatalf("CreateCommitment: err = %v, want InsufficientBalanceError", err)
	}
	assertItemBalance(t, ctx, item.ID, "100")
	assertItemBalance(t, ctx, secondItem.ID, "50")
	assertQuotaConsumed(t, ctx, item.ID, unit.ID, "0")

	var count int64
	if err := config.GetDB().WithContext(ctx).Model(&models.Commitment{}).Count(&count).Error; err != nil {
		t.Fatalf("count commitments: %v", err)
	}
	if count != 0 {
		t.Fatalf("commitments = %d, want 0 (document must not survive a failed posting)", count)
	}
}

func TestConsumptionRequiresUnitAndQuota(t *testing.T) {
	ctx := setupIntegrationEnv(t)

	registration, item, _ := seedRegistration(t, ctx, "100", "10.00", "40")

	_, err := workflow.CreateSubContract(ctx, &workflow.NewSubContract{
		Number:              "CT-002/2024",
		PriceRegistrationId: registration.ID,
		HealthUnitId:        0,
		Lines:               []workflow.ConsumptionLine{{RegisteredItemId: item.ID, Quantity: dec("1")}},
	})
	var missing *models.MissingHealthUnitError
	if !errors.As(err, &missing) {
		t.Fatalf("err = %v, want MissingHealthUnitError", err)
	}

	otherUnit, err := models.CreateHealthUnit(ctx, &models.NewHealthUnit{Name: "UBS Central"})
	if err != nil {
		t.Fatalf("CreateHealthUnit: %v", err)
	}
	_, err = workflow.CreateSubContract(ctx, &workflow.NewSubContract{
		Number:              "CT-003/2024",
		PriceRegistrationId: registration.ID,
		HealthUnitId:        otherUnit.ID,
		Lines:               []workflow.ConsumptionLine{{RegisteredItemId: item.ID, Quantity: dec("1")}},
	})
	var noQuota *models.NoQuotaDefinedError
	if !errors.As(err, &noQuota) {
		t.Fatalf("err = %v, want NoQuotaDefinedError", err)
	}

	// A quota larger than the unit's remaining share also fails, even with
	// global balance to spare.
	unitWithQuota, err := models.CreateHealthUnit(ctx, &models.NewHealthUnit{Name: "Hospital Municipal"})
	if err != nil {
		t.Fatalf("CreateHealthUnit: %v", err)
	}
	if err := models.ReplaceItemQuotas(ctx, item.ID, []models.QuotaAllocation{
		{HealthUnitId: unitWithQuota.ID, AllocatedQuantity: dec("5")},
	}); err != nil {
		t.Fatalf("ReplaceItemQuotas: %v", err)
	}
	_, err = workflow.CreateSubContract(ctx, &workflow.NewSubContract{
		Number:              "CT-004/2024",
		PriceRegistrationId: registration.ID,
		HealthUnitId:        unitWithQuota.ID,
		Lines:               []workflow.ConsumptionLine{{RegisteredItemId: item.ID, Quantity: dec("6")}},
	})
	var insufficientQuota *models.InsufficientQuotaError
	if !errors.As(err, &insufficientQuota) {
		t.Fatalf("err = %v, want InsufficientQuotaError", err)
	}
	assertItemBalance(t, ctx, item.ID, "100")
}

// ---- shared harness ----

func dec(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func setupIntegrationEnv(t *testing.T) context.Context {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "compras_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	return context.Background()
}

func seedRegistration(t *testing.T, ctx context.Context, qty, price, quota string) (*models.PriceRegistration, *models.RegisteredItem, *models.HealthUnit) {
	t.Helper()

	process, err := models.CreateProcess(ctx, &models.NewProcess{Number: "2024/0001", Year: 2024})
	if err != nil {
		t.Fatalf("CreateProcess: %v", err)
	}
	registration, err := models.CreatePriceRegistration(ctx, &models.NewPriceRegistration{
		Number:    "ARP-001",
		Year:      2024,
		ProcessId: process.ID,
	})
	if err != nil {
		t.Fatalf("CreatePriceRegistration: %v", err)
	}
	item, err := models.CreateRegisteredItem(ctx, &models.NewRegisteredItem{
		PriceRegistrationId: registration.ID,
		Description:         "Dipirona 500mg",
		UnitOfMeasure:       "CP",
		RegisteredQuantity:  dec(qty),
		UnitPrice:           dec(price),
		Kind:                models.ItemKindDrug,
	})
	if err != nil {
		t.Fatalf("CreateRegisteredItem: %v", err)
	}
	unit, err := models.CreateHealthUnit(ctx, &models.NewHealthUnit{
		Name: "UPA 24h",
		Kind: models.HealthUnitKindUPA,
	})
	if err != nil {
		t.Fatalf("CreateHealthUnit: %v", err)
	}
	if err := models.ReplaceItemQuotas(ctx, item.ID, []models.QuotaAllocation{
		{HealthUnitId: unit.ID, AllocatedQuantity: dec(quota)},
	}); err != nil {
		t.Fatalf("ReplaceItemQuotas: %v", err)
	}
	return registration, item, unit
}

func assertItemBalance(t *testing.T, ctx context.Context, itemId int, want string) {
	t.Helper()
	item, err := models.GetRegisteredItem(ctx, itemId)
	if err != nil {
		t.Fatalf("GetRegisteredItem(%d): %v", itemId, err)
	}
	if !item.AvailableBalance.Equal(dec(want)) {
		t.Fatalf("item %d balance = %s, want %s", itemId, item.AvailableBalance, want)
	}
}

func assertQuotaConsumed(t *testing.T, ctx context.Context, itemId, unitId int, want string) {
	t.Helper()
	quotas, err := models.GetItemQuotas(ctx, itemId)
	if err != nil {
		t.Fatalf("GetItemQuotas(%d): %v", itemId, err)
	}
	for _, q := range quotas {
		if q.HealthUnitId == unitId {
			if !q.ConsumedQuantity.Equal(dec(want)) {
				t.Fatalf("quota consumed = %s, want %s", q.ConsumedQuantity, want)
			}
			return
		}
	}
	t.Fatalf("no quota for item %d / unit %d", itemId, unitId)
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("compras-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("compras-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=compras_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
