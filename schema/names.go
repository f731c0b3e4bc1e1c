package schema

import "context"

// Logical table names. Stored names are resolved through a Resolver.
const (
	TableSalespeople   = "comerciales"
	TableBrands        = "marcas"
	TableArticles      = "articulos"
	TableOrderTypes    = "tipos_pedido"
	TableOrders        = "pedidos"
	TableOrderLines    = "pedidos_articulos"
	TableCommissionCfg = "config_comisiones"
	TableTransportCfg  = "config_descuento_transporte"
	TableBudgetRebate  = "config_rapel_presupuesto"
	TableMonthlyQuota  = "config_cuota_mensual"
	TableBrandSplit    = "config_reparto_marcas"
	TableObjectives    = "objetivos_marca"
	TableCommissions   = "comisiones"
	TableDetail        = "comisiones_detalle"
	TableStatus        = "estado_comisiones"
	TableRebates       = "rapeles"
	TableRebateTiers   = "rapeles_configuracion"
	TableFixedAmounts  = "fijos_mensuales_marca"
	TableSpecial       = "condiciones_especiales"
	TableRuns          = "ejecuciones"
)

// DefaultAliases lists the legacy and alternate names seen in deployed
// databases, tried after case-insensitive matching of the logical name.
var DefaultAliases = map[string][]string{
	TableSalespeople:  {"Comerciales", "vendedores"},
	TableBrands:       {"Marcas"},
	TableArticles:     {"Articulos"},
	TableOrderTypes:   {"TiposPedido", "tipos_pedidos"},
	TableOrders:       {"Pedidos"},
	TableOrderLines:   {"pedidos_lineas", "PedidosArticulos", "lineas_pedido"},
	TableDetail:       {"comisiones_detalles", "detalle_comisiones"},
	TableStatus:       {"estados_comisiones", "comisiones_estado"},
	TableFixedAmounts: {"fijos_mensuales_marcas", "comisiones_fijos_marca"},
	TableRebates:      {"rapeles_comerciales"},

	// columns
	"nombre":         {"Nombre", "name"},
	"marca_id":       {"Id_Marca", "id_marca", "marca"},
	"comercial_id":   {"Id_Comercial", "id_comercial", "vendedor_id"},
	"tipo_pedido_id": {"Id_TipoPedido", "id_tipo_pedido", "tipo_pedido"},
	"pedido_id":      {"Id_Pedido", "id_pedido"},
	"articulo_id":    {"Id_Articulo", "id_articulo"},
	"fecha":          {"fecha_pedido", "FechaPedido"},
	"estado":         {"estado_pedido", "EstadoPedido"},
	"cantidad":       {"unidades", "Cantidad"},
	"subtotal":       {"importe", "Subtotal", "total_linea"},
	"activo":         {"Activo", "activa"},
}

// NameColumns resolves a lookup table with an id and a display name, such as
// comerciales or marcas. ok is false when any part is missing.
func NameColumns(ctx context.Context, r Resolver, logical string) (table, idCol, nameCol string, ok bool) {
	table, err := r.ResolveTable(ctx, logical)
	if err != nil {
		return "", "", "", false
	}
	if idCol, err = r.ResolveColumn(ctx, table, "id"); err != nil {
		return "", "", "", false
	}
	if nameCol, err = r.ResolveColumn(ctx, table, "nombre"); err != nil {
		return "", "", "", false
	}
	return table, idCol, nameCol, true
}
