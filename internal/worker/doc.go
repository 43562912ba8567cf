// Package worker содержит executor шагов workflow.
//
// Registry реализует orchestrator.StepExecutor: выбирает обработчик по
// config.handler, рендерит шаблоны в конфигурации шага и вызывает обработчик.
//
// Обработчики:
//   - noop      — ничего не делает, возвращает {ok: true}
//   - delay     — ждёт duration_sec / duration_ms, учитывает отмену context
//   - transform — возвращает отрендеренные mappings
//   - http      — выполняет HTTP запрос; 4xx/5xx считаются ошибкой
//   - fail      — всегда падает с config.message
//
// Пример конфигурации шага:
//
//	config:
//	  handler: http
//	  method: POST
//	  url: "https://api.github.com/repos/{{ .vars.repo }}/issues"
//	  body:
//	    title: "{{ .vars.title }}"
package worker
