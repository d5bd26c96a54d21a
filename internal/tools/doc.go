// Package tools implements the tool registry exposed to the reply generator.
//
// Tools are registered explicitly at startup (see RegisterBuiltins and the
// composition root), never as a side effect of importing a package. The
// registry converts its contents into llm.ToolDefinition values so the
// generator stays decoupled from how tools are organized.
package tools
