package pipeline

// Per-stage instruction text bound into each stage's input artifact.
// The orchestrator treats these as opaque constants consumed by the
// external workers; it never interprets them.

const researchInstructions = `You are a market researcher. Given the product, ` +
	`audience and tone below, produce a structured research summary: target ` +
	`persona, top three pain points, competitor positioning, and the single ` +
	`strongest value proposition. Respond with JSON only.`

const productManagerInstructions = `You are a product manager. Using the research ` +
	`summary provided, write the landing page content plan: headline, subheadline, ` +
	`three feature blocks with benefit-oriented copy, social proof angle, and a ` +
	`call-to-action. Respond with JSON only.`

const drawerInstructions = `You are an illustrator. From the content plan provided, ` +
	`describe the hero illustration and one supporting image per feature block: ` +
	`subject, composition, and style notes suitable for an image model. Respond ` +
	`with JSON only.`

const designerInstructions = `You are a web designer. Combine the content plan and ` +
	`illustration notes into a page layout specification: section order, grid, ` +
	`color palette, typography, and spacing tokens. Respond with JSON only.`

const coderInstructions = `You are a front-end engineer. Implement the layout ` +
	`specification as a single self-contained HTML file with inline CSS. Return ` +
	`the complete file content in the "html" field. Respond with JSON only.`

var stageInstructions = map[Stage]string{
	StageResearch:       researchInstructions,
	StageProductManager: productManagerInstructions,
	StageDrawer:         drawerInstructions,
	StageDesigner:       designerInstructions,
	StageCoder:          coderInstructions,
}

// Instructions returns the constant prompt text for a stage. Unknown
// stages return the empty string; callers validate stages beforehand.
func Instructions(s Stage) string {
	return stageInstructions[s]
}
