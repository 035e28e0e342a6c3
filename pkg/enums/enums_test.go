package enums

import "testing"

func TestUserRoleStaffSet(t *testing.T) {
	for _, role := range []UserRole{RoleGerencia, RoleVendedor, RoleFacturacion, RoleDespacho, RoleCompras} {
		if !role.IsStaff() {
			t.Fatalf("expected %s to be staff", role)
		}
	}
	if RoleCliente.IsStaff() {
		t.Fatal("cliente must not be staff")
	}
	if !RoleGerencia.IsSuper() || RoleVendedor.IsSuper() {
		t.Fatal("only gerencia is the super role")
	}
}

func TestParseUserRoleNormalizes(t *testing.T) {
	role, err := ParseUserRole("  Vendedor ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if role != RoleVendedor {
		t.Fatalf("expected vendedor got %s", role)
	}
	if _, err := ParseUserRole("admin"); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestParseApprovalState(t *testing.T) {
	state, err := ParseApprovalState("APROBADO")
	if err != nil || !state.IsApproved() {
		t.Fatalf("expected aprobado, got %q err=%v", state, err)
	}
	if _, err := ParseApprovalState("activo"); err == nil {
		t.Fatal("expected error for unknown state")
	}
}

func TestStockOperationApply(t *testing.T) {
	cases := []struct {
		op      StockOperation
		current int
		qty     int
		want    int
	}{
		{StockSumar, 5, 3, 8},
		{StockRestar, 5, 3, 2},
		{StockRestar, 2, 10, 0},
		{StockEstablecer, 5, 42, 42},
	}
	for _, tc := range cases {
		got, err := tc.op.Apply(tc.current, tc.qty)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tc.op, err)
		}
		if got != tc.want {
			t.Fatalf("%s(%d,%d): expected %d got %d", tc.op, tc.current, tc.qty, tc.want, got)
		}
	}
	if _, err := StockOperation("multiplicar").Apply(1, 1); err == nil {
		t.Fatal("expected error for unknown operation")
	}
	if _, err := StockSumar.Apply(MaxStock-1, 2); err == nil {
		t.Fatal("expected overflow error")
	}
	if got, err := StockSumar.Apply(MaxStock-1, 1); err != nil || got != MaxStock {
		t.Fatalf("expected exact max to pass, got %d %v", got, err)
	}
	if _, err := StockEstablecer.Apply(0, -1); err == nil {
		t.Fatal("expected negative quantity error")
	}
}

func TestParseOutboxDLQErrorReason(t *testing.T) {
	reason, err := ParseOutboxDLQErrorReason("unroutable")
	if err != nil || reason != OutboxDLQReasonUnroutable {
		t.Fatalf("expected unroutable, got %q err=%v", reason, err)
	}
	if _, err := ParseOutboxDLQErrorReason("timeout"); err == nil {
		t.Fatal("expected error for unknown reason")
	}
}

func TestDispatchStatusDrivesOrderStatus(t *testing.T) {
	cases := map[DispatchStatus]OrderStatus{
		DispatchPreparacion: OrderStatusEnPreparacion,
		DispatchListo:       OrderStatusEnPreparacion,
		DispatchDespachado:  OrderStatusDespachado,
		DispatchEntregado:   OrderStatusEntregado,
	}
	for dispatch, want := range cases {
		got, ok := dispatch.OrderStatus()
		if !ok || got != want {
			t.Fatalf("%s: expected %s, got %s ok=%v", dispatch, want, got, ok)
		}
	}
	if _, ok := DispatchError.OrderStatus(); ok {
		t.Fatal("error dispatches should not move the order")
	}
	if DispatchEntregado.Active() || !DispatchError.Active() {
		t.Fatal("only delivered dispatches are inactive")
	}
}

func TestPurchaseOrderTransitions(t *testing.T) {
	if !PurchasePendiente.CanMoveTo(PurchaseRecibida) || !PurchaseEnviada.CanMoveTo(PurchaseCancelada) {
		t.Fatal("expected open orders to move forward")
	}
	if PurchaseRecibida.CanMoveTo(PurchaseCancelada) || PurchaseCancelada.CanMoveTo(PurchasePendiente) {
		t.Fatal("final states must not move")
	}
	if PurchaseEnviada.CanMoveTo(PurchasePendiente) {
		t.Fatal("sent orders cannot go back to pending")
	}
}

func TestParseOrderEnums(t *testing.T) {
	if status, err := ParseOrderStatus(" Entregado "); err != nil || status != OrderStatusEntregado {
		t.Fatalf("expected entregado, got %q err=%v", status, err)
	}
	if _, err := ParseOrderStatus("perdido"); err == nil {
		t.Fatal("expected error for unknown order status")
	}
	if _, err := ParsePaymentStatus("pagado"); err != nil {
		t.Fatalf("parse payment: %v", err)
	}
	if _, err := ParseCommissionStatus("pagada"); err == nil {
		t.Fatal("expected error for unknown commission status")
	}
	if !OrderStatusFacturado.Closed() || OrderStatusEntregado.Closed() {
		t.Fatal("only invoiced and cancelled orders are closed")
	}
}
