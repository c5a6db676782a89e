package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/flowforge/flowforge/internal/catalog/domain"
	catalogrepo "github.com/flowforge/flowforge/internal/catalog/repository"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type patternSeed struct {
	name     string
	hints    string
	summary  string
	document string
}

type tipSeed struct {
	hints string
	text  string
}

type templateSeed struct {
	name     string
	hints    string
	document string
}

var patternSeeds = []patternSeed{
	{
		name:     "webhook-to-slack",
		hints:    `["webhook","slack","notification"]`,
		summary:  "Receive an inbound webhook and post a formatted message to a Slack channel.",
		document: `{"name":"Webhook to Slack","nodes":[{"id":"trigger","type":"webhook_trigger","parameters":{"path":"incoming","method":"POST"}},{"id":"notify","type":"slack_message","parameters":{"channel":"#alerts","text":"={{payload.summary}}"}}],"connections":[{"from":"trigger","to":"notify"}],"settings":{}}`,
	},
	{
		name:     "daily-report-email",
		hints:    `["schedule","email","report"]`,
		summary:  "Run every morning, fetch rows from an API and mail a digest.",
		document: `{"name":"Daily Report","nodes":[{"id":"cron","type":"schedule_trigger","parameters":{"cron":"0 7 * * *"}},{"id":"fetch","type":"http_request","parameters":{"method":"GET","url":"https://api.example.com/report"}},{"id":"mail","type":"email_send","parameters":{"to":"team@example.com","subject":"Daily report"}}],"connections":[{"from":"cron","to":"fetch"},{"from":"fetch","to":"mail"}],"settings":{}}`,
	},
	{
		name:     "conditional-routing",
		hints:    `["condition","branch"]`,
		summary:  "Route items down different paths based on a field comparison.",
		document: `{"name":"Conditional Routing","nodes":[{"id":"trigger","type":"webhook_trigger","parameters":{"path":"orders","method":"POST"}},{"id":"check","type":"if","parameters":{"left":"={{payload.total}}","operator":"gt","right":"100"}},{"id":"high","type":"slack_message","parameters":{"channel":"#vip","text":"Large order received"}},{"id":"low","type":"noop","parameters":{}}],"connections":[{"from":"trigger","to":"check"},{"from":"check","to":"high","branch":"true"},{"from":"check","to":"low","branch":"false"}],"settings":{}}`,
	},
	{
		name:     "api-sync-loop",
		hints:    `["http","loop","sync"]`,
		summary:  "Page through an API and upsert each batch into a data store.",
		document: `{"name":"API Sync","nodes":[{"id":"cron","type":"schedule_trigger","parameters":{"cron":"*/30 * * * *"}},{"id":"page","type":"http_request","parameters":{"method":"GET","url":"https://api.example.com/items?page={{cursor}}"}},{"id":"each","type":"split_in_batches","parameters":{"size":50}},{"id":"store","type":"http_request","parameters":{"method":"POST","url":"https://internal.example.com/upsert"}}],"connections":[{"from":"cron","to":"page"},{"from":"page","to":"each"},{"from":"each","to":"store"}],"settings":{}}`,
	},
	{
		name:     "form-to-crm",
		hints:    `["form","crm","webhook"]`,
		summary:  "Capture a form submission, enrich it and create a CRM contact.",
		document: `{"name":"Form to CRM","nodes":[{"id":"form","type":"webhook_trigger","parameters":{"path":"signup","method":"POST"}},{"id":"enrich","type":"http_request","parameters":{"method":"GET","url":"https://enrich.example.com/v1/person?email={{payload.email}}"}},{"id":"create","type":"http_request","parameters":{"method":"POST","url":"https://crm.example.com/contacts"}}],"connections":[{"from":"form","to":"enrich"},{"from":"enrich","to":"create"}],"settings":{}}`,
	},
	{
		name:     "transform-and-forward",
		hints:    `["transform","mapping"]`,
		summary:  "Reshape incoming fields before forwarding downstream.",
		document: `{"name":"Transform and Forward","nodes":[{"id":"trigger","type":"webhook_trigger","parameters":{"path":"events","method":"POST"}},{"id":"map","type":"set_fields","parameters":{"fields":{"user":"={{payload.user_id}}","kind":"={{payload.type}}"}}},{"id":"forward","type":"http_request","parameters":{"method":"POST","url":"https://sink.example.com/ingest"}}],"connections":[{"from":"trigger","to":"map"},{"from":"map","to":"forward"}],"settings":{}}`,
	},
}

var tipSeeds = []tipSeed{
	{hints: `["webhook"]`, text: "Webhook trigger paths must be unique per workflow; keep them short and lowercase."},
	{hints: `["schedule"]`, text: "Schedule triggers use five-field cron expressions evaluated in UTC."},
	{hints: `["condition","branch"]`, text: "An if node has exactly two outgoing branches, labeled true and false."},
	{hints: `["http","sync"]`, text: "HTTP request nodes should declare a timeout; downstream nodes receive the parsed JSON body."},
	{hints: `["slack","email","notification"]`, text: "Notification nodes accept ={{ }} expressions that interpolate fields from the incoming item."},
}

var templateSeeds = []templateSeed{
	{
		name:     "blank-webhook",
		hints:    `["webhook","form","crm"]`,
		document: `{"name":"","nodes":[{"id":"trigger","type":"webhook_trigger","parameters":{"path":"","method":"POST"}}],"connections":[],"settings":{}}`,
	},
	{
		name:     "blank-schedule",
		hints:    `["schedule","report","sync"]`,
		document: `{"name":"","nodes":[{"id":"cron","type":"schedule_trigger","parameters":{"cron":"0 * * * *"}}],"connections":[],"settings":{}}`,
	},
	{
		name:     "branching-skeleton",
		hints:    `["condition","branch"]`,
		document: `{"name":"","nodes":[{"id":"trigger","type":"webhook_trigger","parameters":{"path":"","method":"POST"}},{"id":"check","type":"if","parameters":{}}],"connections":[{"from":"trigger","to":"check"}],"settings":{}}`,
	},
}

// EnsureCatalog seeds the hint catalog once. An already populated catalog is
// left untouched so operators can curate rows in place.
func EnsureCatalog(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	repo := catalogrepo.Provide()
	ctx := context.Background()

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		count, err := repo.CountPatterns(ctx, tx)
		if err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		now := time.Now().UTC()
		for i, seed := range patternSeeds {
			pattern := catalogdomain.ExemplarPattern{
				ID:        node.Generate(),
				Name:      seed.name,
				Position:  i,
				Hints:     datatypes.JSON(seed.hints),
				Summary:   seed.summary,
				Document:  datatypes.JSON(seed.document),
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := repo.InsertPattern(ctx, tx, &pattern); err != nil {
				return err
			}
		}
		for i, seed := range tipSeeds {
			tip := catalogdomain.Tip{
				ID:        node.Generate(),
				Position:  i,
				Hints:     datatypes.JSON(seed.hints),
				Text:      seed.text,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := repo.InsertTip(ctx, tx, &tip); err != nil {
				return err
			}
		}
		for i, seed := range templateSeeds {
			template := catalogdomain.TemplateSkeleton{
				ID:        node.Generate(),
				Name:      seed.name,
				Position:  i,
				Hints:     datatypes.JSON(seed.hints),
				Document:  datatypes.JSON(seed.document),
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := repo.InsertTemplate(ctx, tx, &template); err != nil {
				return err
			}
		}
		return nil
	})
}
