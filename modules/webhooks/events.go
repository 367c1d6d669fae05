package webhooks

import (
	"fmt"
	"slices"
	"strings"
)

// Event codes sent in the "evento" field.
const (
	EventOrderCreated        = "OS_CRIADA"
	EventOrderStatusChanged  = "OS_STATUS_ALTERADO"
	EventOrderCompleted      = "OS_FINALIZADA"
	EventQuoteApproved       = "ORCAMENTO_APROVADO"
	EventPaymentReceived     = "PAGAMENTO_RECEBIDO"
	EventStockLow            = "ESTOQUE_BAIXO"
	EventCustomerCreated     = "CLIENTE_CRIADO"
	EventVehicleCreated      = "VEICULO_CRIADO"
	EventAppointmentCreated  = "AGENDAMENTO_CRIADO"
	EventAppointmentCanceled = "AGENDAMENTO_CANCELADO"

	// EventTest is only sent by the test delivery path.
	EventTest = "TESTE"
)

var eventNames = map[string]string{
	EventOrderCreated:        "Ordem de Serviço Criada",
	EventOrderStatusChanged:  "Status da Ordem de Serviço Alterado",
	EventOrderCompleted:      "Ordem de Serviço Finalizada",
	EventQuoteApproved:       "Orçamento Aprovado",
	EventPaymentReceived:     "Pagamento Recebido",
	EventStockLow:            "Estoque Baixo",
	EventCustomerCreated:     "Cliente Cadastrado",
	EventVehicleCreated:      "Veículo Cadastrado",
	EventAppointmentCreated:  "Agendamento Criado",
	EventAppointmentCanceled: "Agendamento Cancelado",
	EventTest:                "Evento de Teste",
}

// EventInfo describes a subscribable event.
type EventInfo struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// EventName returns the display name of code, or code itself when unknown.
func EventName(code string) string {
	if name, ok := eventNames[code]; ok {
		return name
	}
	return code
}

// Catalog lists the events endpoints can subscribe to, sorted by code.
func Catalog() []EventInfo {
	out := make([]EventInfo, 0, len(eventNames))
	for code, name := range eventNames {
		if code == EventTest {
			continue
		}
		out = append(out, EventInfo{Code: code, Name: name})
	}
	slices.SortFunc(out, func(a, b EventInfo) int { return strings.Compare(a.Code, b.Code) })
	return out
}

// NormalizeEvents trims, upper-cases and de-duplicates codes and rejects
// codes outside the catalog. The result is sorted.
func NormalizeEvents(codes []string) ([]string, error) {
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c == "" {
			continue
		}
		if _, ok := eventNames[c]; !ok || c == EventTest {
			return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, c)
		}
		out = append(out, c)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}
