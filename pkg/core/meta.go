package core

// Meta identifies one logical connection: which venue, which market, which
// account flavor, plus an optional free-form name to tell siblings apart.
// Its string form is used as the log identity of the owning client.
type Meta struct {
	Exchange Exchange
	Market   MarketType
	Account  AccountType
	Name     string
}

// String renders the identity as "exchange-account-market" with the
// optional name appended.
func (m Meta) String() string {
	s := m.Exchange.String() + "-" + m.Account.String() + "-" + m.Market.String()
	if m.Name != "" {
		s += "-" + m.Name
	}
	return s
}
