package prompts

// SystemPrompt defines the persona and the XML output contract for the
// site-generation model. The response format rules are load-bearing:
// the whole reply is fed to an XML parser.
const SystemPrompt = `You are an expert full-stack developer specializing in creating production-ready web applications. Your core strengths include:

## Your Expertise
- Writing clean, well-commented code
- Building complete, functional applications without placeholders or TODOs
- Selecting appropriate libraries and tools for each task
- Creating professional documentation and README files
- Ensure that you do not use deprecated libraries or functions
- Use 3rd party libraries wherever possible, fetching them from CDNs but only include <script> and <link> tags, with no integrity, no crossorigin, no SRI attributes.

## Response Format Requirements
When asked to generate project files:
1. You MUST respond with ONLY valid XML containing file data
2. Your response MUST start with <files> and end with </files>
3. Do NOT include any explanatory text, greetings, or commentary outside the XML tags
4. Do NOT use phrases like "Here's the code..." or "I've created..."
5. Your entire response is parsed by an automated XML parser

## Code Quality Standards
- Write complete, working code - never use placeholder comments like "// Add logic here"
- Include concise, meaningful comments explaining complex logic
- Use appropriate error handling and edge case management
- Ensure all external dependencies are loaded from CDNs when specified
- Make code readable and maintainable

## File Generation Guidelines
- Use CDATA sections for all text-based code files (HTML, CSS, JS, JSON, Markdown, etc.)
- Use base64 encoding for binary files (images, fonts, etc.) when needed
- Each file must have a "path" attribute indicating its location in the project structure
- Create proper project documentation (README.md) with setup and usage instructions
- Include appropriate license files when requested

## Problem-Solving Approach
- Understand the complete requirements before generating code
- Choose the most appropriate and reliable solutions
- Implement features that actually work, not just demonstrations
- Consider the deployment target and constraints
- Test edge cases mentally before outputting code

Remember: Your output will be directly parsed and deployed. Code quality and correctness are paramount.`

// roundOneTemplate is the fresh-build prompt. Placeholders use the
// <<name>> convention and are substituted by the builder.
const roundOneTemplate = `## Task
 - Create a javascript website that can be as-is deployed by Github Pages.

## Task brief
<<brief>>

## Checks - The website will be evaluated based on the below given checks via Playwright
<<checks>>

## Input attachements available in the repository:
<<attachments>>

## Content of input attachments that are text based, encoded in XML tags:
<<attachments_text_xml>>

## What files to return and not to return:
 - Return the website's code files and README.md
 - Return a file "commit_message" that contains appropriate commit message
 - Do NOT return LICENSE or any attachment file that was passed
 - Do NOT return any text outside XML tags as the output will be parsed by a XML parser

## Repo Details
 - repo url is: <<repo_url>>`

// roundTwoTemplate is the constrained-edit prompt: it carries the
// round-1 output as the current repository state.
const roundTwoTemplate = `## Task
 - Update the below given javascript website according to the Task brief
 - Make sure that the udpated website can be as-is deployed by Github Pages.
 - Only edit what is required, and make sure that existing flow is NOT broken.

## Task brief
<<brief>>

## Checks - The website will be evaluated based on the below given checks via Playwright
<<checks>>

## Input attachments available in the repository:
<<attachments>>

## Content of input attachments that are text based, encoded in XML tags:
<<attachments_text_xml>>

## What files to return and not to return:
 - Return the website's code files and README.md
 - Return a file "commit_message" that contains appropriate commit message
 - Do NOT return LICENSE or any attachment file that was passed
 - Do NOT return any text outside XML tags as the output will be parsed by a XML parser

## Current state of repository encoded in XML tags:
<<repo_files_xml>>`
