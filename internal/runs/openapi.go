package runs

import (
	"github.com/JaimeStill/invoiceflow/pkg/openapi"
)

// Describe adds the run gateway paths and schemas to spec.
func Describe(spec *openapi.Spec) {
	spec.Components.AddSchemas(schemas())

	idParam := openapi.PathParam("id", "Run ID")
	failures := func(codes ...int) map[int]*openapi.Response {
		refs := map[int]*openapi.Response{}
		for _, code := range codes {
			switch code {
			case 400:
				refs[code] = openapi.ResponseRef("BadRequest")
			case 404:
				refs[code] = openapi.ResponseRef("NotFound")
			case 409:
				refs[code] = openapi.ResponseRef("Conflict")
			}
		}
		return refs
	}
	with := func(base map[int]*openapi.Response, code int, r *openapi.Response) map[int]*openapi.Response {
		base[code] = r
		return base
	}

	spec.Paths["/runs"] = &openapi.PathItem{
		Post: &openapi.Operation{
			Summary:     "Submit an invoice",
			Description: "Creates a run and drives it until it completes, pauses for review, or fails. A run that fails a stage is still created.",
			Tags:        []string{"Runs"},
			RequestBody: openapi.RequestBodyJSON("Payload", true),
			Responses:   with(failures(400), 201, openapi.ResponseJSON("Run created", "Created")),
		},
		Get: &openapi.Operation{
			Summary:     "List runs",
			Description: "Most recently updated first. The review queue is status=PAUSED.",
			Tags:        []string{"Runs"},
			Parameters: []*openapi.Parameter{
				openapi.QueryParam("page", "integer", "Page number", false),
				openapi.QueryParam("page_size", "integer", "Results per page", false),
				openapi.QueryParam("status", "string", "Filter by status", false),
				openapi.QueryParam("stage", "string", "Filter by stage", false),
				openapi.QueryParam("pause_kind", "string", "Filter paused runs by pause kind", false),
			},
			Responses: map[int]*openapi.Response{
				200: openapi.ResponseJSON("Run summaries", "SummaryPage"),
			},
		},
	}

	spec.Paths["/runs/{id}"] = &openapi.PathItem{
		Get: &openapi.Operation{
			Summary:    "Get a run",
			Tags:       []string{"Runs"},
			Parameters: []*openapi.Parameter{idParam},
			Responses:  with(failures(400, 404), 200, openapi.ResponseJSON("Run projection", "Projection")),
		},
	}

	spec.Paths["/runs/{id}/decision"] = &openapi.PathItem{
		Post: &openapi.Operation{
			Summary:     "Decide a paused run",
			Description: "ACCEPT resumes the run; REJECT ends it in REQUIRES_MANUAL_HANDLING. One decision is accepted per checkpoint; once a run has a decision, later pauses must name checkpoint_id.",
			Tags:        []string{"Runs"},
			Parameters:  []*openapi.Parameter{idParam},
			RequestBody: openapi.RequestBodyJSON("DecideCommand", true),
			Responses:   with(failures(400, 404, 409), 200, openapi.ResponseJSON("Decision accepted", "Acknowledgement")),
		},
	}

	checkpointParam := openapi.PathParam("checkpoint_id", "Checkpoint ID")

	spec.Paths["/review/{checkpoint_id}"] = &openapi.PathItem{
		Get: &openapi.Operation{
			Summary:    "Get a review checkpoint",
			Tags:       []string{"Review"},
			Parameters: []*openapi.Parameter{checkpointParam},
			Responses:  with(failures(400, 404), 200, openapi.ResponseJSON("Checkpoint and run", "Review")),
		},
	}

	spec.Paths["/review/{checkpoint_id}/decision"] = &openapi.PathItem{
		Post: &openapi.Operation{
			Summary:     "Decide a review checkpoint",
			Description: "Conflicts unless the checkpoint is the run's open one.",
			Tags:        []string{"Review"},
			Parameters:  []*openapi.Parameter{checkpointParam},
			RequestBody: openapi.RequestBodyJSON("DecideCommand", true),
			Responses:   with(failures(400, 404, 409), 200, openapi.ResponseJSON("Decision accepted", "Acknowledgement")),
		},
	}

	spec.Paths["/runs/{id}/cancel"] = &openapi.PathItem{
		Post: &openapi.Operation{
			Summary:     "Cancel a run",
			Tags:        []string{"Runs"},
			Parameters:  []*openapi.Parameter{idParam},
			RequestBody: openapi.RequestBodyJSON("CancelCommand", false),
			Responses:   with(failures(400, 404, 409), 200, openapi.ResponseJSON("Cancelled run", "Projection")),
		},
	}

	spec.Paths["/runs/{id}/checkpoints"] = &openapi.PathItem{
		Get: &openapi.Operation{
			Summary:    "List review checkpoints",
			Tags:       []string{"Runs"},
			Parameters: []*openapi.Parameter{idParam},
			Responses: with(failures(400, 404), 200, &openapi.Response{
				Description: "Checkpoints, oldest first",
				Content: map[string]*openapi.MediaType{
					"application/json": {Schema: &openapi.Schema{Type: "array", Items: openapi.SchemaRef("Checkpoint")}},
				},
			}),
		},
	}
}

func schemas() map[string]*openapi.Schema {
	str := func(desc string) *openapi.Schema { return &openapi.Schema{Type: "string", Description: desc} }
	num := func(desc string) *openapi.Schema { return &openapi.Schema{Type: "number", Description: desc} }
	id := func(desc string) *openapi.Schema { return &openapi.Schema{Type: "string", Format: "uuid", Description: desc} }
	ts := &openapi.Schema{Type: "string", Format: "date-time"}
	decision := &openapi.Schema{Type: "string", Enum: []any{"ACCEPT", "REJECT"}}
	status := &openapi.Schema{Type: "string", Enum: []any{"RUNNING", "PAUSED", "COMPLETED", "REQUIRES_MANUAL_HANDLING", "FAILED"}}

	return map[string]*openapi.Schema{
		"Payload": {
			Type:        "object",
			Description: "Invoice submission. Either structured fields, ocr_text, or attachments must identify the invoice.",
			Properties: map[string]*openapi.Schema{
				"invoice_number":  str("Invoice number"),
				"vendor_name":     str("Vendor name as printed"),
				"vendor_tax_id":   str("Vendor tax ID"),
				"currency":        str("ISO 4217 currency code"),
				"amount":          num("Invoice total"),
				"tax_amount":      num("Tax total"),
				"po_ref":          str("Purchase order reference"),
				"invoice_date":    {Type: "string", Format: "date"},
				"due_date":        {Type: "string", Format: "date"},
				"region":          str("Region used for tool selection"),
				"document_type":   str("Document type used for tool selection"),
				"source":          str("Submission source"),
				"ocr_text":        str("Raw OCR text"),
				"line_items":      {Type: "array", Items: &openapi.Schema{Type: "object"}},
				"attachments":     {Type: "array", Items: &openapi.Schema{Type: "object"}},
				"preferred_tools": {Type: "object", Description: "Capability to tool name"},
			},
		},
		"Created": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"run_id": id("Run ID"),
				"status": status,
				"stage":  str("Stage the run stopped at"),
				"pause":  {Type: "object", Description: "Pause reference with review_url when paused"},
				"error":  {Type: "object", Description: "Failure when the run failed a stage"},
			},
		},
		"Summary": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"run_id":         id("Run ID"),
				"status":         status,
				"stage":          str("Current stage"),
				"pause_kind":     str("Pause kind when paused"),
				"invoice_number": str("Invoice number"),
				"vendor_name":    str("Vendor name"),
				"amount":         num("Invoice total"),
				"match_score":    num("Two-way match score"),
				"created_at":     ts,
				"updated_at":     ts,
			},
		},
		"SummaryPage": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"data":        {Type: "array", Items: openapi.SchemaRef("Summary")},
				"total":       {Type: "integer"},
				"page":        {Type: "integer"},
				"page_size":   {Type: "integer"},
				"total_pages": {Type: "integer"},
			},
		},
		"Projection": {
			Type:        "object",
			Description: "Read-only view of a run",
			Properties: map[string]*openapi.Schema{
				"run_id":        id("Run ID"),
				"status":        status,
				"stage":         str("Current stage"),
				"seq":           {Type: "integer", Description: "Persisted write sequence"},
				"match_score":   num("Two-way match score"),
				"error_kind":    str("Failure classification"),
				"decision":      decision,
				"decided_by":    str("Reviewer of record"),
				"audit":         {Type: "array", Items: &openapi.Schema{Type: "object"}},
				"final_payload": {Type: "object"},
				"created_at":    ts,
				"updated_at":    ts,
			},
		},
		"DecideCommand": {
			Type:     "object",
			Required: []string{"decision"},
			Properties: map[string]*openapi.Schema{
				"decision":      decision,
				"reviewer":      str("Reviewer identity, used when no authenticated caller is present"),
				"checkpoint_id": id("Checkpoint being decided; required after the run's first decision"),
			},
		},
		"Acknowledgement": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"run_id":        id("Run ID"),
				"checkpoint_id": id("Checkpoint decided"),
				"decision":      decision,
				"decided_by":    str("Reviewer of record"),
				"status":        status,
				"stage":         str("Stage the resumed run stopped at"),
				"error_kind":    str("Failure classification"),
				"pause":         {Type: "object", Description: "Next pause when the resumed run paused again"},
			},
		},
		"Review": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"checkpoint": openapi.SchemaRef("Checkpoint"),
				"run":        openapi.SchemaRef("Projection"),
			},
		},
		"CancelCommand": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"reason": str("Reason recorded on the run"),
			},
		},
		"Checkpoint": {
			Type: "object",
			Properties: map[string]*openapi.Schema{
				"checkpoint_id": id("Checkpoint ID"),
				"run_id":        id("Run ID"),
				"kind":          str("Pause kind"),
				"resume_stage":  str("Stage a decision resumes at"),
				"review_url":    str("Review link"),
				"status":        {Type: "string", Enum: []any{"OPEN", "RESOLVED", "SUPERSEDED"}},
				"decision":      decision,
				"decided_by":    str("Reviewer of record"),
				"created_at":    ts,
				"resolved_at":   ts,
			},
		},
	}
}
