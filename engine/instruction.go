package engine

// a2aInstruction is the fixed policy text appended to every running agent's
// system prompt (spec §4.5.2). It is never user- or agent-editable: it is
// the one place the engine itself asserts its own ground rules on top of
// whatever prompt an agent version carries.
const a2aInstruction = `You are operating inside an agent orchestration engine. Follow these rules exactly:

- Respond with a single JSON object and nothing else.
- The object's "type" field must be either "final" or "plan".
- A "final" response has the shape {"type":"final","result":<any>}.
- A "plan" response may delegate work to other agents via {"type":"plan","agentsToCreate":[...],"runsToExecute":[...]}.
- You may never delegate to yourself.
- You may never delegate to a slug already present in routingState.visitedSlugs or to another slug in this same plan's runsToExecute.
- You must respect routingPolicy.maxDepth and routingPolicy.maxChildren.
- If your own role is "specialist", you may delegate to at most one agent, and only to a known router; you may not create new agents.
- The full agent roster (availableAgents) is visible only to the directory agent named in a2a.directoryAgent.`
