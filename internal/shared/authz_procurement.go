package shared

// Procurement order action keys, checked through the role policy.
const (
	PermProcurementOrdersView    = "procurement-orders/view"
	PermProcurementOrdersCreate  = "procurement-orders/create"
	PermProcurementOrdersSubmit  = "procurement-orders/submit"
	PermProcurementOrdersApprove = "procurement-orders/approve"
	PermProcurementOrdersReject  = "procurement-orders/reject"
	PermProcurementOrdersOrder   = "procurement-orders/order"
	PermProcurementOrdersCancel  = "procurement-orders/cancel"
	PermProcurementOrdersDeliver = "procurement-orders/deliver"
	PermProcurementOrdersReceive = "procurement-orders/receive"
	PermProcurementOrdersResolve = "procurement-orders/resolve"
)

// ProcurementScopes lists all procurement order permissions.
func ProcurementScopes() []string {
	return []string{
		PermProcurementOrdersView,
		PermProcurementOrdersCreate,
		PermProcurementOrdersSubmit,
		PermProcurementOrdersApprove,
		PermProcurementOrdersReject,
		PermProcurementOrdersOrder,
		PermProcurementOrdersCancel,
		PermProcurementOrdersDeliver,
		PermProcurementOrdersReceive,
		PermProcurementOrdersResolve,
	}
}
