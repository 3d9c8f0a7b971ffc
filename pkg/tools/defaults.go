package tools

// defaultHandlers builds the built-in tool set every Registry starts
// with. Order does not matter: the registry keys handlers by name and
// FunctionDeclarations sorts by name — this list is grouped by concern
// for readability.
func defaultHandlers(ws *Workspace) []Handler {
	return []Handler{
		listFilesTool{},
		readFileTool{},
		writeFileTool{create: false},
		writeFileTool{create: true},
		editFileTool{},
		deleteFileTool{},
		fileMetadataTool{},
		projectOverviewTool{},

		&grepSearchTool{},
		simpleSearchTool{},
		astGrepTool{},
		srgnTool{},
		treeSitterAnalyzeTool{},

		bashTool{name: "run_terminal_cmd"},
		newPtySessionTool(),
		applyPatchTool{},

		curlTool{},
	}
}
