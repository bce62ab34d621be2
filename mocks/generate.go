package mocks

//go:generate mockgen -destination=./mock_connector.go -package=mocks github.com/rxtech-lab/argo-connector/internal/connector Connector
//go:generate mockgen -destination=./mock_event_journal.go -package=mocks github.com/rxtech-lab/argo-connector/internal/registry EventJournal
